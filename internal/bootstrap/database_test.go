package bootstrap

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/bulkmail/config"
)

func TestPostgresDSN_EscapesCredentials(t *testing.T) {
	dsn := postgresDSN(config.DBConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "bulk@mail",
		Password: "p/ss:w#rd",
		Name:     "bulkmail",
		SSLMode:  "require",
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db.internal:5433", u.Host)
	assert.Equal(t, "bulk@mail", u.User.Username())
	pass, _ := u.User.Password()
	assert.Equal(t, "p/ss:w#rd", pass)
	assert.Equal(t, "/bulkmail", u.Path)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
}

func TestRedisUniversalOptions(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.RedisConfig
		topology redisTopology
		addrs    []string
		password string
		master   string
		wantErr  bool
	}{
		{
			name:     "bare address",
			cfg:      config.RedisConfig{URI: " localhost:6379 ", Password: "secret"},
			topology: redisDirect,
			addrs:    []string{"localhost:6379"},
			password: "secret",
		},
		{
			name:     "url password wins",
			cfg:      config.RedisConfig{URI: "redis://:fromurl@cache:6380/2", Password: "secret"},
			topology: redisDirect,
			addrs:    []string{"cache:6380"},
			password: "fromurl",
		},
		{name: "direct without uri", cfg: config.RedisConfig{}, wantErr: true},
		{name: "bad url", cfg: config.RedisConfig{URI: "redis://cache:notaport"}, wantErr: true},
		{
			name: "sentinel",
			cfg: config.RedisConfig{
				UseSentinel:        true,
				SentinelNodes:      []string{"s1:26379", " ", "s2:26379"},
				SentinelMasterName: "mymaster",
			},
			topology: redisSentinel,
			addrs:    []string{"s1:26379", "s2:26379"},
			master:   "mymaster",
		},
		{name: "sentinel without nodes", cfg: config.RedisConfig{UseSentinel: true, SentinelNodes: []string{""}}, wantErr: true},
		{
			name:     "cluster nodes",
			cfg:      config.RedisConfig{UseCluster: true, ClusterNodes: []string{"c1:7000", "c2:7000"}},
			topology: redisCluster,
			addrs:    []string{"c1:7000", "c2:7000"},
		},
		{
			name:     "cluster falls back to uri",
			cfg:      config.RedisConfig{UseCluster: true, ClusterNodes: []string{""}, URI: "rediss://c0:7000"},
			topology: redisCluster,
			addrs:    []string{"c0:7000"},
		},
		{name: "cluster without anything", cfg: config.RedisConfig{UseCluster: true}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, topology, err := redisUniversalOptions(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.topology, topology)
			assert.Equal(t, tt.addrs, opts.Addrs)
			assert.Equal(t, tt.password, opts.Password)
			assert.Equal(t, tt.master, opts.MasterName)
		})
	}
}

func TestRedisUniversalOptions_TLSFromURL(t *testing.T) {
	opts, _, err := redisUniversalOptions(config.RedisConfig{URI: "rediss://cache:6380"})
	require.NoError(t, err)
	assert.NotNil(t, opts.TLSConfig)
}
