package descriptor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewlink/crewlink/core"
)

func TestDescriptorValidate(t *testing.T) {
	valid := Descriptor{AgentID: "support", Endpoint: "http://127.0.0.1:8102"}
	assert.NoError(t, valid.Validate())

	missingID := Descriptor{Endpoint: "http://127.0.0.1:8102"}
	err := missingID.Validate()
	assert.Equal(t, core.KindDiscovery, core.KindOf(err))

	missingEndpoint := Descriptor{AgentID: "support"}
	err = missingEndpoint.Validate()
	assert.Equal(t, core.KindDiscovery, core.KindOf(err))
}

func TestResolveInline(t *testing.T) {
	d := Descriptor{AgentID: "support", Endpoint: "http://127.0.0.1:8102"}

	resolved, err := NewResolver().Resolve(context.Background(), RefInline(d))
	require.NoError(t, err)
	assert.Equal(t, "support", resolved.AgentID)

	// The resolved descriptor is a copy, not an alias.
	resolved.AgentID = "mutated"
	assert.Equal(t, "support", d.AgentID)
}

func TestResolveInlineInvalid(t *testing.T) {
	_, err := NewResolver().Resolve(context.Background(), RefInline(Descriptor{AgentID: "support"}))
	assert.Equal(t, core.KindDiscovery, core.KindOf(err))
}

func TestResolveWellKnownURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"agentId":"customer-data","endpoint":"http://10.0.0.5:8101","displayName":"Customer Data","skills":[{"skillId":"customer-lookup"}]}`))
	}))
	defer srv.Close()

	resolved, err := NewResolver().Resolve(context.Background(), RefURL(srv.URL+"/"))
	require.NoError(t, err)

	assert.Equal(t, WellKnownPath, gotPath)
	assert.Equal(t, "customer-data", resolved.AgentID)
	assert.Equal(t, "http://10.0.0.5:8101", resolved.Endpoint)
	assert.Len(t, resolved.Skills, 1)
}

func TestResolveNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewResolver().Resolve(context.Background(), RefURL(srv.URL))
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestResolveMalformedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"agentId": `))
	}))
	defer srv.Close()

	_, err := NewResolver().Resolve(context.Background(), RefURL(srv.URL))
	assert.Equal(t, core.KindDiscovery, core.KindOf(err))
}

func TestResolveIncompleteDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"displayName":"No identity"}`))
	}))
	defer srv.Close()

	_, err := NewResolver().Resolve(context.Background(), RefURL(srv.URL))
	assert.Equal(t, core.KindDiscovery, core.KindOf(err))
}

func TestResolveUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewResolver().Resolve(context.Background(), RefURL(srv.URL))
	assert.Equal(t, core.KindDiscovery, core.KindOf(err))
}
