package commands

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/securestream/crypto"
)

// run executes the CLI with args and returns stdout.
func run(t *testing.T, stdin []byte, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetArgs(args)
	root.SetIn(bytes.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return out.String(), err
}

func cliEnv(t *testing.T) {
	t.Setenv(PasswordEnv, "test password")
	t.Setenv("SECURESTREAM_PBKDF_TARGET_MILLIS", "10")
	t.Setenv("SECURESTREAM_LOG_LEVEL", "error")
}

func TestSelftestCommand(t *testing.T) {
	cliEnv(t)
	out, err := run(t, nil, "selftest")
	require.NoError(t, err)
	assert.Contains(t, out, "fortuna: ok")
	assert.Contains(t, out, "stream: ok")
}

func TestCalibrateCommand(t *testing.T) {
	cliEnv(t)
	out, err := run(t, nil, "calibrate", "--target-ms", "20")
	require.NoError(t, err)
	assert.Contains(t, out, "iterations for 20ms")
}

func TestSealUnseal(t *testing.T) {
	cliEnv(t)
	dir := t.TempDir()
	sealed := filepath.Join(dir, "note.sealed")

	_, err := run(t, []byte("meet at noon"), "seal", "-o", sealed)
	require.NoError(t, err)
	blob, err := os.ReadFile(sealed)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "noon")

	out, err := run(t, nil, "unseal", "-i", sealed)
	require.NoError(t, err)
	assert.Equal(t, "meet at noon", out)

	t.Setenv(PasswordEnv, "wrong")
	_, err = run(t, nil, "unseal", "-i", sealed)
	assert.ErrorIs(t, err, errWrongPassword)
}

// pairContacts runs keygen and agree for two parties in dir.
func pairContacts(t *testing.T, dir string) (aliceContact, bobContact string) {
	t.Helper()
	for _, who := range []string{"a", "b"} {
		_, err := run(t, nil, "keygen", "-o", filepath.Join(dir, who+".key"))
		require.NoError(t, err)
	}
	aliceContact = filepath.Join(dir, "a.contact")
	bobContact = filepath.Join(dir, "b.contact")

	outA, err := run(t, nil, "agree", "-k", filepath.Join(dir, "a.key"), "--peer", "@"+filepath.Join(dir, "b.key.pub"),
		"--epoch", "2026-01-01", "-o", aliceContact)
	require.NoError(t, err)
	outB, err := run(t, nil, "agree", "-k", filepath.Join(dir, "b.key"), "--peer", "@"+filepath.Join(dir, "a.key.pub"),
		"--epoch", "2026-01-01", "-o", bobContact)
	require.NoError(t, err)

	codes := func(out string) (ours, theirs string) {
		for _, line := range strings.Split(out, "\n") {
			if v, ok := strings.CutPrefix(line, "your code:"); ok {
				ours = strings.TrimSpace(v)
			}
			if v, ok := strings.CutPrefix(line, "their code:"); ok {
				theirs = strings.TrimSpace(v)
			}
		}
		return ours, theirs
	}
	aOurs, aTheirs := codes(outA)
	bOurs, bTheirs := codes(outB)
	require.NotEmpty(t, aOurs)
	assert.Equal(t, aOurs, bTheirs)
	assert.Equal(t, aTheirs, bOurs)
	assert.NotEqual(t, strings.Contains(outA, "role:       alice"), strings.Contains(outB, "role:       alice"))
	return aliceContact, bobContact
}

func TestKeygenAgree(t *testing.T) {
	cliEnv(t)
	dir := t.TempDir()
	a, b := pairContacts(t, dir)

	component, err := newTestComponent()
	require.NoError(t, err)
	ca, err := loadContact(component, a, "test password")
	require.NoError(t, err)
	defer ca.master.Erase()
	cb, err := loadContact(component, b, "test password")
	require.NoError(t, err)
	defer cb.master.Erase()

	assert.True(t, ca.master.Equal(cb.master))
	assert.NotEqual(t, ca.alice, cb.alice)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), ca.epoch)
}

func TestSendListen(t *testing.T) {
	cliEnv(t)
	dir := t.TempDir()
	a, b := pairContacts(t, dir)

	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := probe.Addr().String()
	probe.Close()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		root := NewRootCommand()
		var out bytes.Buffer
		root.SetArgs([]string{"listen", "-c", b, "--store", filepath.Join(dir, "store-b"), addr})
		root.SetOut(&out)
		root.SetErr(&bytes.Buffer{})
		err := root.Execute()
		done <- result{out.String(), err}
	}()

	message := bytes.Repeat([]byte("over the wire "), 200)
	deadline := time.Now().Add(10 * time.Second)
	for {
		_, err = run(t, message, "send", "-c", a, "--store", filepath.Join(dir, "store-a"), addr)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	require.NoError(t, err)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, string(message), res.out)
	case <-time.After(10 * time.Second):
		t.Fatal("listener did not finish")
	}
}

func TestContactEncoding(t *testing.T) {
	master, err := crypto.NewSecretKey(bytes.Repeat([]byte{7}, crypto.SecretKeyLength))
	require.NoError(t, err)
	defer master.Erase()

	c := &contact{alice: true, epoch: time.Unix(1767225600, 0).UTC(), master: master}
	raw := c.marshal()
	assert.Len(t, raw, contactLength)

	back, err := unmarshalContact(raw)
	require.NoError(t, err)
	defer back.master.Erase()
	assert.True(t, back.alice)
	assert.Equal(t, c.epoch, back.epoch)
	assert.True(t, back.master.Equal(master))

	_, err = unmarshalContact(raw[:len(raw)-1])
	assert.ErrorIs(t, err, errBadContactFile)
	raw[0] = 2
	_, err = unmarshalContact(raw)
	assert.ErrorIs(t, err, errBadContactFile)
}

func TestParseEpoch(t *testing.T) {
	got, err := parseEpoch("2026-02-03")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), got)

	got, err = parseEpoch("2026-02-03T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 3, 8, 0, 0, 0, time.UTC), got)

	_, err = parseEpoch("yesterday")
	assert.Error(t, err)

	got, err = parseEpoch("")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), got.Sub(got.Truncate(24*time.Hour)))
}

func TestParsePeerKey(t *testing.T) {
	_, err := parsePeerKey("zz")
	assert.Error(t, err)
	_, err = parsePeerKey(strings.Repeat("00", 32))
	assert.ErrorIs(t, err, crypto.ErrInvalidPublicKey)
	key, err := parsePeerKey(strings.Repeat("09", 32))
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func newTestComponent() (*crypto.Component, error) {
	return crypto.NewComponent(crypto.NewSeedProvider(), 10)
}
