package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type CacheTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	cache  *Cache
	ctx    context.Context
}

func TestCache(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func (s *CacheTestSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.ctx = context.Background()

	client, err := NewClient(s.ctx, s.mr.Addr(), "", 0)
	s.Require().NoError(err)
	s.client = client

	s.cache, err = NewCache(client, 5*time.Minute)
	s.Require().NoError(err)
}

func (s *CacheTestSuite) TearDownTest() {
	s.client.Close()
}

type doc struct {
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}

func (s *CacheTestSuite) TestMiss() {
	var d doc
	found, err := s.cache.GetJSON(s.ctx, "product:1", &d)
	s.Require().NoError(err)
	s.False(found)
}

func (s *CacheTestSuite) TestSetGetExpire() {
	s.Require().NoError(s.cache.SetJSON(s.ctx, "product:1", doc{Name: "mug", Stock: 3}))

	var d doc
	found, err := s.cache.GetJSON(s.ctx, "product:1", &d)
	s.Require().NoError(err)
	s.True(found)
	s.Equal(doc{Name: "mug", Stock: 3}, d)
	s.Equal(5*time.Minute, s.mr.TTL("product:1"))

	s.mr.FastForward(6 * time.Minute)
	found, err = s.cache.GetJSON(s.ctx, "product:1", &d)
	s.Require().NoError(err)
	s.False(found)
}

func (s *CacheTestSuite) TestDelete() {
	s.Require().NoError(s.cache.SetJSON(s.ctx, "a", doc{}))
	s.Require().NoError(s.cache.SetJSON(s.ctx, "b", doc{}))

	s.Require().NoError(s.cache.Delete(s.ctx, "a", "b", "missing"))
	s.False(s.mr.Exists("a"))
	s.False(s.mr.Exists("b"))
	s.NoError(s.cache.Delete(s.ctx))
}

func (s *CacheTestSuite) TestCorruptEntry() {
	s.Require().NoError(s.mr.Set("product:9", "{not json"))
	var d doc
	found, err := s.cache.GetJSON(s.ctx, "product:9", &d)
	s.Error(err)
	s.False(found)
}

func (s *CacheTestSuite) TestNewClientRejectsEmptyAddr() {
	_, err := NewClient(s.ctx, "", "", 0)
	s.Error(err)
}
