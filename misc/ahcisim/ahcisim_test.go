package main

import "bytes"
import "io"
import "os"
import "path/filepath"
import "testing"

import "github.com/google/pprof/profile"
import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

func run(args ...string) (string, error) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writecfg(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "ahcisim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultTopology(t *testing.T) {
	out, err := run("probe")
	require.NoError(t, err)
	assert.Contains(t, out, "port 0: sata started")
	assert.Contains(t, out, "port 1: satapi started")
	assert.Contains(t, out, `model "QEMU HARDDISK" serial "QM00001" firmware "2.5+"`)
	assert.Contains(t, out, "disk 0: 2097152 blocks of 512 bytes")
	assert.Contains(t, out, "disk 1: 4096 blocks of 2048 bytes")
	assert.Contains(t, out, "dev 5,0")
	assert.Contains(t, out, "dev 8,1")
}

func TestTopologyFile(t *testing.T) {
	path := writecfg(t, `
ahci:
  max_sectors: 64
sim:
  msi: true
  slots: 4
  ports:
    - port: 3
      kind: ata
      sectors: 1000
      model: SMALL
    - port: 5
    - port: 7
      kind: pm
`)
	out, err := run("probe", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "port 3: sata started")
	assert.Contains(t, out, "1000 sectors, lba48 false")
	assert.NotContains(t, out, "port 5")
	assert.NotContains(t, out, "port 7")

	out, err = run("rw", "--config", path, "--blocks", "200", "--passes", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "disk 0: 2 passes of 200 blocks ok")
}

func TestBadTopology(t *testing.T) {
	_, err := run("probe", "--config", writecfg(t, `
sim:
  ports:
    - port: 0
      kind: floppy
`))
	assert.ErrorContains(t, err, "unknown kind")

	_, err = run("probe", "--config", writecfg(t, `
sim:
  ports:
    - port: 40
      kind: ata
`))
	assert.ErrorContains(t, err, "out of range")

	_, err = run("probe", "--ahci.max_sectors", "100")
	assert.Error(t, err)
}

func TestRwAllDisks(t *testing.T) {
	out, err := run("rw", "--blocks", "64", "--passes", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "disk 0: 2 passes of 64 blocks ok")
	assert.Contains(t, out, "disk 1: 2 passes of 64 blocks ok")

	out, err = run("rw", "--block", "4090", "--blocks", "64", "--passes", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "disk 1: range past end, skipped")
}

func TestStatsProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ahci.pb.gz")
	out, err := run("stats", "--blocks", "16", "--passes", "1", "--pprof", path)
	require.NoError(t, err)
	assert.Contains(t, out, "#Nread: 1")
	assert.Contains(t, out, "hba:")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	p, err := profile.Parse(f)
	require.NoError(t, err)
	assert.NotEmpty(t, p.Sample)
}

func TestDiag(t *testing.T) {
	out, err := run("diag")
	require.NoError(t, err)
	assert.Contains(t, out, "no errors")

	out, err = run("diag", "--inject", "taskfile")
	require.NoError(t, err)
	assert.Contains(t, out, "task file error")
	assert.Contains(t, out, "error log:")

	out, err = run("diag", "--inject", "hostbus")
	require.NoError(t, err)
	assert.Contains(t, out, "host bus fatal error")

	_, err = run("diag", "--inject", "gremlins")
	assert.ErrorContains(t, err, "unknown fault")
}
