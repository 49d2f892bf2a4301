package config

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolveScheme(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		scheme string
		kind   Kind
		ok     bool
	}{
		{"s3", KindAWS, true},
		{"AWS", KindAWS, true},
		{"mc", KindMinio, true},
		{"mio", KindMinio, true},
		{"s3compat", KindS3C, true},
		{"r2", KindR2, true},
		{"mem", KindMemory, true},
		{"file", KindLocal, true},
		{"gs", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.scheme, func(t *testing.T) {
			k, ok := r.ResolveScheme(tt.scheme)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, k)
		})
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Get("s3")
	assert.False(t, ok, "nothing registered yet")

	require.NoError(t, r.Register("s3", &ProviderConfig{Region: "eu-west-1"}))
	p, ok := r.Get("aws")
	require.True(t, ok, "aliases share one record")
	assert.Equal(t, KindAWS, p.Kind)
	assert.Equal(t, "eu-west-1", p.Region)

	p.Region = "mutated"
	again, _ := r.Get("s3")
	assert.Equal(t, "eu-west-1", again.Region, "Get must return a copy")

	assert.Error(t, r.Register("file", nil))
	assert.Error(t, r.Register("gs", nil))
	assert.Error(t, r.Register("s3", DefaultProvider(KindR2)))

	require.NoError(t, r.Register("minio", &ProviderConfig{Kind: KindMinio}))
	assert.NoError(t, r.Register("minio", nil), "invalid records are accepted; validation is lazy")
}

func TestRegistryUpdate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("r2", DefaultProvider(KindR2)))

	require.NoError(t, r.Update("r2", map[string]interface{}{"account_id": "acct"}))
	p, _ := r.Get("r2")
	assert.Equal(t, "acct", p.AccountID)

	err := r.Update("r2", map[string]interface{}{"account_id": "other", "bogus": true})
	require.Error(t, err)
	p, _ = r.Get("r2")
	assert.Equal(t, "acct", p.AccountID, "failed update must not partially apply")

	assert.Error(t, r.Update("r2", map[string]interface{}{"kind": "aws"}))
}

func TestRegistryUpdateAuth(t *testing.T) {
	env := map[string]string{}
	r := NewRegistry(WithSetenv(func(k, v string) error {
		env[k] = v
		return nil
	}))
	require.NoError(t, r.Register("minio", &ProviderConfig{Kind: KindMinio, Endpoint: "m:9000"}))

	var notified [][]string
	r.OnChange(func(schemes []string) { notified = append(notified, schemes) })

	require.NoError(t, r.UpdateAuth("mc", map[string]interface{}{"access_key": "ak", "secret_key": "sk"}))

	assert.Equal(t, "ak", env["MINIO_ACCESS_KEY"])
	assert.Equal(t, "sk", env["MINIO_SECRET_KEY"])
	assert.Equal(t, "m:9000", env["MINIO_ENDPOINT"])
	require.Len(t, notified, 1)
	assert.Equal(t, []string{"mc", "mio", "minio"}, notified[0])
}

func TestRegistryUpdateAuthSetenvFailure(t *testing.T) {
	r := NewRegistry(WithSetenv(func(string, string) error { return errors.New("read-only env") }))
	require.NoError(t, r.Register("s3", nil))

	called := false
	r.OnChange(func([]string) { called = true })

	assert.Error(t, r.UpdateAuth("s3", map[string]interface{}{"access_key": "a", "secret_key": "b"}))
	assert.False(t, called)
}

func TestRegistryCustomScheme(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterScheme("wasabi", KindS3C))
	require.NoError(t, r.Register("wasabi", &ProviderConfig{Endpoint: "https://s3.wasabisys.com"}))

	p, ok := r.Get("s3c")
	require.True(t, ok)
	assert.Equal(t, "https://s3.wasabisys.com", p.Endpoint)
	assert.Contains(t, r.SchemesFor(KindS3C), "wasabi")
	assert.Equal(t, []Kind{KindS3C}, r.Kinds())

	assert.Error(t, r.RegisterScheme("file", KindAWS))
	assert.Error(t, r.RegisterScheme("x", "gcs"))
}

func TestRegistryFromConfig(t *testing.T) {
	cfg := NewDefault()
	cfg.Providers["mem"] = DefaultProvider(KindMemory)
	r, err := NewRegistryFromConfig(cfg)
	require.NoError(t, err)

	_, ok := r.Get("memory")
	assert.True(t, ok)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(WithSetenv(func(string, string) error { return nil }))
	require.NoError(t, r.Register("s3", nil))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.UpdateAuth("s3", map[string]interface{}{"region": "us-west-2"})
		}()
		go func() {
			defer wg.Done()
			_, _ = r.Get("aws")
		}()
	}
	wg.Wait()

	p, _ := r.Get("s3")
	assert.Equal(t, "us-west-2", p.Region)
}
