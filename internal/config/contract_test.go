package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestContractHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contracts.yml")
	body := "contracts:\n  defaultCommissionBps: 450\n  organizers:\n    \"42\": 400\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	holder, err := NewContractHolder(Config{ContractsPath: path}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, int64(450), holder.CommissionBps("7"))
	assert.Equal(t, int64(400), holder.CommissionBps("42"))
}

func TestContractHolderRejectsOutOfRangeRate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contracts.yml")
	body := "contracts:\n  defaultCommissionBps: 20000\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := NewContractHolder(Config{ContractsPath: path}, zap.NewNop())
	assert.Error(t, err)
}

func TestStaticContractsFallsBackToDefault(t *testing.T) {
	holder := StaticContracts(DefaultContractTerms())
	assert.Equal(t, DefaultCommissionBps, holder.CommissionBps("anything"))
}
