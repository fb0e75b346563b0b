package consul

import (
	"errors"
	"fmt"
	"strconv"

	consulapi "github.com/hashicorp/consul/api"
)

func NewClient(addr string) (*consulapi.Client, error) {
	if addr == "" {
		return nil, errors.New("consul address is empty")
	}
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	return client, nil
}

// RegisterService registers the HTTP API with the local agent along with a /ping health check.
// It returns the service id to deregister with.
func RegisterService(client *consulapi.Client, name, host string, port int) (string, error) {
	serviceID := name + "-" + host + "-" + strconv.Itoa(port)
	registration := &consulapi.AgentServiceRegistration{
		ID:      serviceID,
		Name:    name,
		Address: host,
		Port:    port,
		Tags:    []string{"http", "storefront"},
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/ping", host, port),
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := client.Agent().ServiceRegister(registration); err != nil {
		return "", fmt.Errorf("failed to register service %s: %w", name, err)
	}
	return serviceID, nil
}

func DeregisterService(client *consulapi.Client, serviceID string) error {
	if err := client.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("failed to deregister service %s: %w", serviceID, err)
	}
	return nil
}
