package sandbox

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/agentforge/internal/domain"
	"github.com/rezkam/agentforge/internal/step"
)

func TestLocalProvisioner_ProvisionCreatesAndReleaseRemovesDirectory(t *testing.T) {
	p := &LocalProvisioner{BaseDir: t.TempDir()}

	dir, release, err := p.Provision(context.Background(), domain.AgentTask{ID: "acme/widgets/issues/1"})
	require.NoError(t, err)

	_, statErr := os.Stat(dir)
	require.NoError(t, statErr)

	release()
	_, statErr = os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLocalContextBuilder_ReturnsConfiguredDefault(t *testing.T) {
	want := step.Context{Language: "go", BuildTool: "go build"}
	b := &LocalContextBuilder{Default: want}

	got, err := b.BuildContext(context.Background(), "c1", domain.AgentTask{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
