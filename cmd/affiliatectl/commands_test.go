package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("AFFILIATE_CATALOG", "")
	t.Setenv("AFFILIATE_LOG_LEVEL", "")

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCatalogValidate(t *testing.T) {
	out, err := execute(t, "catalog", "validate", "--file", "../../catalog/testdata/catalog.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "3 products ok")
	assert.Contains(t, out, "club")
	assert.Contains(t, out, `level="Bundle Owner" rank=2`)
}

func TestCatalogValidateDefault(t *testing.T) {
	out, err := execute(t, "catalog", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "built-in catalog: 4 products ok")
	assert.Contains(t, out, "monthly_partner")
}

func TestCatalogValidateMissingFile(t *testing.T) {
	_, err := execute(t, "catalog", "validate", "--file", "missing.yaml")
	assert.Error(t, err)
}

func TestReplay(t *testing.T) {
	lines := []string{
		`{"transaction_type":"SALE","transaction_id":"CB-1","product_id":"54","customer_wpid":"7","sponsor_wpid":"42","commission":"10.00"}`,
		`{"provider":"clickbank","payload":{"transaction_type":"SALE","transaction_id":"CB-2","product_id":"1000","customer_wpid":"8","sponsor_wpid":"42","commission":"3.50"}}`,
		``,
		`{"transaction_type":"SALE","transaction_id":"CB-1","product_id":"54","customer_wpid":"7","sponsor_wpid":"42","commission":"10.00"}`,
		`{"transaction_type":"RFND","transaction_id":"CB-1","product_id":"54","customer_wpid":"7","commission":"-10.00"}`,
		`{"transaction_type":"INSF","transaction_id":"CB-3"}`,
		`not json`,
	}
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600))

	out, err := execute(t, "replay", "--file", path, "--concurrency", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "recorded  3\n")
	assert.Contains(t, out, "ignored   1\n")
	assert.Contains(t, out, "invalid   2\n")
	assert.Contains(t, out, "earner 42: net 3.50 over 3 entries")
}

func TestReplayRequiresFile(t *testing.T) {
	_, err := execute(t, "replay")
	assert.Error(t, err)
}

func TestReplayRejectsZeroConcurrency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	_, err := execute(t, "replay", "--file", path, "--concurrency", "0")
	assert.ErrorContains(t, err, "concurrency")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitList(" a:9092, ,b:9092 "))
	assert.Nil(t, splitList(""))
}
