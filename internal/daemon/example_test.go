package daemon

import (
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health"

	"github.com/bayleafwalker/bindery-scr/internal/metadata"
	"github.com/bayleafwalker/bindery-scr/internal/reference"
	"github.com/bayleafwalker/bindery-scr/internal/registry"
)

func TestRuntime_ExampleComponents(t *testing.T) {
	manifests, err := metadata.LoadFile("../../examples/components.yaml")
	require.NoError(t, err)
	require.Len(t, manifests, 5)

	reg := registry.New(testr.New(t))
	rt := New(testr.New(t), reg, health.NewServer())
	require.NoError(t, rt.Start(manifests))
	t.Cleanup(rt.Close)

	require.True(t, rt.Ready())

	owners := map[string][]reference.ConfigurationID{}
	for _, e := range rt.Graph().Edges {
		owners[e.Reference] = append(owners[e.Reference], e.Owner)
	}
	// the fallback store is too old for the target filter
	require.Equal(t, []reference.ConfigurationID{"store-primary"}, owners["store"])
	require.ElementsMatch(t, []reference.ConfigurationID{"audit-file", "audit-syslog"}, owners["audit"])
	require.Empty(t, rt.Graph().Cycles())
}
