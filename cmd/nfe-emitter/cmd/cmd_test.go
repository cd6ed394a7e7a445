package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft/drafttest"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/security/securitytest"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		// Flags are package globals; reset the ones tests touch
		buildOutput, buildTransmissible = "", false
		signOutput, signBundle, signEvent, signVerify = "", "", false, false
		outputFormat = "text"
	})
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeDraft(t *testing.T, d *draft.Draft) string {
	t.Helper()
	data, err := json.Marshal(d)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "draft.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestBuildDraftMode(t *testing.T) {
	path := writeDraft(t, drafttest.Valid())

	out, _, err := execute(t, "build", path)
	require.NoError(t, err)
	assert.Contains(t, out, `Id="NFe`+strings.Repeat("0", 44)+`"`)
	assert.Contains(t, out, "<vNF>")
}

func TestBuildTransmissibleRequiresKey(t *testing.T) {
	path := writeDraft(t, drafttest.Valid())

	_, stderr, err := execute(t, "build", path, "--transmissible")
	require.Error(t, err)
	assert.Contains(t, stderr, "[CONFIGURATION]")
}

func TestBuildJSONOutput(t *testing.T) {
	path := writeDraft(t, drafttest.WithKey())

	out, _, err := execute(t, "build", path, "--transmissible", "--format", "json")
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "NFe"+drafttest.AccessKey, decoded["id"])
	assert.Equal(t, "transmissible", decoded["mode"])
}

func TestBuildReportsIssues(t *testing.T) {
	d := drafttest.WithKey()
	d.Items[0].Product.Total = drafttest.D("99.00")
	path := writeDraft(t, d)

	_, stderr, err := execute(t, "build", path)
	require.Error(t, err)
	assert.Contains(t, stderr, "[DATA]")
}

func TestSignAndVerify(t *testing.T) {
	dir := t.TempDir()
	cert := securitytest.Generate(t)
	pfx := filepath.Join(dir, "company.pfx")
	require.NoError(t, os.WriteFile(pfx, cert.PFX, 0o600))
	t.Setenv("TEST_PFX_PASSWORD", securitytest.Password)

	unsigned := filepath.Join(dir, "nfe.xml")
	_, _, err := execute(t, "build", writeDraft(t, drafttest.WithKey()), "--transmissible", "-o", unsigned)
	require.NoError(t, err)

	signed := filepath.Join(dir, "signed.xml")
	_, _, err = execute(t, "sign", unsigned, "--pfx", pfx, "--password-env", "TEST_PFX_PASSWORD", "-o", signed)
	require.NoError(t, err)

	data, err := os.ReadFile(signed)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<SignatureValue>")

	out, _, err := execute(t, "sign", signed, "--verify")
	require.NoError(t, err)
	assert.Contains(t, out, "signature valid")
}

func TestSignRefusesDraftDocument(t *testing.T) {
	dir := t.TempDir()
	cert := securitytest.Generate(t)
	pfx := filepath.Join(dir, "company.pfx")
	require.NoError(t, os.WriteFile(pfx, cert.PFX, 0o600))
	t.Setenv("TEST_PFX_PASSWORD", securitytest.Password)

	unsigned := filepath.Join(dir, "nfe.xml")
	_, _, err := execute(t, "build", writeDraft(t, drafttest.Valid()), "-o", unsigned)
	require.NoError(t, err)

	_, _, err = execute(t, "sign", unsigned, "--pfx", pfx, "--password-env", "TEST_PFX_PASSWORD")
	assert.Error(t, err)
}

func TestOnlineCommandsRequireCompany(t *testing.T) {
	companyID = ""
	t.Setenv("NFE_COMPANY", "")
	for _, args := range [][]string{
		{"emit", "draft.json"},
		{"status"},
		{"query", drafttest.AccessKey},
		{"cancel", drafttest.AccessKey, "--reason", "Pedido cancelado pelo cliente"},
	} {
		_, _, err := execute(t, args...)
		assert.ErrorContains(t, err, "--company is required", "%v", args)
	}
}
