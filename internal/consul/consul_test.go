package consul

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndDeregister(t *testing.T) {
	var registered consulapi.AgentServiceRegistration
	var deregistered string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/agent/service/register":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&registered))
		case strings.HasPrefix(r.URL.Path, "/v1/agent/service/deregister/"):
			deregistered = strings.TrimPrefix(r.URL.Path, "/v1/agent/service/deregister/")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, err := NewClient(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)

	id, err := RegisterService(client, "storefront", "10.0.0.5", 8080)
	require.NoError(t, err)
	assert.Equal(t, "storefront-10.0.0.5-8080", id)
	assert.Equal(t, "storefront", registered.Name)
	assert.Equal(t, 8080, registered.Port)
	require.NotNil(t, registered.Check)
	assert.Equal(t, "http://10.0.0.5:8080/ping", registered.Check.HTTP)

	require.NoError(t, DeregisterService(client, id))
	assert.Equal(t, id, deregistered)
}

func TestRegisterSurfacesAgentErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)

	_, err = RegisterService(client, "storefront", "localhost", 8080)
	assert.Error(t, err)
}

func TestNewClientRequiresAddress(t *testing.T) {
	_, err := NewClient("")
	assert.Error(t, err)
}
