// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/bootsign/avb"
	"github.com/bureau-foundation/bootsign/avb/avbtest"
	"github.com/bureau-foundation/bootsign/lib/config"
	"github.com/bureau-foundation/bootsign/lib/testutil"
	"github.com/bureau-foundation/bootsign/sandbox"
)

func readyHandle(t *testing.T, root string, signer avb.Signer) *Handle {
	t.Helper()
	keyPEM, _ := avbtest.RSAKey(t, 2048)
	return NewHandle(func(context.Context) (*Environment, error) {
		return &Environment{
			Root:   root,
			Signer: signer,
			Files: map[string][]byte{
				avb.HashFooterKey:   keyPEM,
				avb.CustomPublicKey: bytes.Repeat([]byte{0xC5}, 1032),
			},
		}, nil
	})
}

func instantiate(t *testing.T, handle *Handle, workingDirectory string) (*sandbox.Context, error) {
	t.Helper()
	registry := sandbox.NewRegistry()
	if err := RegisterModule(registry, handle); err != nil {
		t.Fatal(err)
	}
	execution, err := registry.Instantiate(context.Background(), ModuleName, sandbox.Options{
		ID:               "avb-sign",
		NoAutoRun:        true,
		WorkingDirectory: workingDirectory,
	})
	if err == nil {
		t.Cleanup(func() { execution.Close() })
	}
	return execution, err
}

func TestSignModule(t *testing.T) {
	root := t.TempDir()
	signer := &avbtest.Signer{}
	execution, err := instantiate(t, readyHandle(t, root, signer), "/jobs/job-7")
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	ns := execution.FS()
	if err := ns.WriteFile("vbmeta.img", avbtest.VBMetaImage(avbtest.DefaultVBMeta)); err != nil {
		t.Fatal(err)
	}
	if err := ns.WriteFile("boot.img", avbtest.BootImage(avbtest.DefaultBoot)); err != nil {
		t.Fatal(err)
	}

	err = execution.CallMain(context.Background(), []string{"vbmeta.img", "boot", "13", "boot.img", "67108864"})
	if err != nil {
		t.Fatalf("CallMain: %v", err)
	}

	archive, err := ns.ReadFile("/jobs/job-7/SignedImages.zip")
	if err != nil {
		t.Fatal(err)
	}
	entries, err := avb.UnpackZip(archive)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Name != "boot.img" || entries[1].Name != avb.VBMetaOutput {
		t.Fatalf("entries = %d", len(entries))
	}
	if !bytes.HasSuffix(entries[0].Data, avbtest.Footer("boot", 67108864)) {
		t.Error("boot image has no hash footer")
	}
	if entries[1].Data[0xFFE50] != 0x60 {
		t.Error("vbmeta not padded for android 13")
	}

	if _, err := os.Stat(filepath.Join(root, "jobs", "job-7")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("job directory left behind: %v", err)
	}
}

// gateSigner holds the first MakeVBMeta call until release is closed.
type gateSigner struct {
	avbtest.Signer
	held    atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gateSigner) MakeVBMeta(ctx context.Context, dir string, plan *avb.VBMetaPlan, log io.Writer) error {
	if g.held.CompareAndSwap(false, true) {
		close(g.entered)
		<-g.release
	}
	return g.Signer.MakeVBMeta(ctx, dir, plan, log)
}

func TestSignModuleRunsWithSameJobID(t *testing.T) {
	root := t.TempDir()
	signer := &gateSigner{entered: make(chan struct{}), release: make(chan struct{})}
	handle := readyHandle(t, root, signer)
	args := []string{"vbmeta.img", "boot", "11", "boot.img", "67108864"}

	start := func() *sandbox.Context {
		execution, err := instantiate(t, handle, "/jobs/dup")
		if err != nil {
			t.Fatalf("Instantiate: %v", err)
		}
		ns := execution.FS()
		if err := ns.WriteFile("vbmeta.img", avbtest.VBMetaImage(avbtest.DefaultVBMeta)); err != nil {
			t.Fatal(err)
		}
		if err := ns.WriteFile("boot.img", avbtest.BootImage(avbtest.DefaultBoot)); err != nil {
			t.Fatal(err)
		}
		return execution
	}

	first := start()
	firstDone := make(chan error, 1)
	go func() { firstDone <- first.CallMain(context.Background(), args) }()
	testutil.RequireClosed(t, signer.entered, 5*time.Second, "first run signing")

	second := start()
	if err := second.CallMain(context.Background(), args); err != nil {
		t.Fatalf("second run: %v", err)
	}
	close(signer.release)
	if err := testutil.RequireReceive(t, firstDone, 5*time.Second, "first run finished"); err != nil {
		t.Fatalf("first run after the second finished: %v", err)
	}

	for _, execution := range []*sandbox.Context{first, second} {
		if _, err := execution.FS().ReadFile("/jobs/dup/SignedImages.zip"); err != nil {
			t.Error(err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "jobs", "dup")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("job directory left behind: %v", err)
	}
}

func TestSignModuleErrors(t *testing.T) {
	tests := []struct {
		name             string
		workingDirectory string
		args             []string
		wantExit         int
	}{
		{"usage", "/jobs/j", []string{"vbmeta.img"}, 2},
		{"bad platform", "/jobs/j", []string{"vbmeta.img", "boot", "eleven", "boot.img", "1"}, 1},
		{"unsupported platform", "/jobs/j", []string{"vbmeta.img", "boot", "12", "boot.img", "1"}, 1},
		{"no job directory", "/", []string{"vbmeta.img", "boot", "11", "boot.img", "1"}, 1},
		{"missing input", "/jobs/j", []string{"vbmeta.img", "boot", "11", "boot.img", "1"}, 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			execution, err := instantiate(t, readyHandle(t, t.TempDir(), &avbtest.Signer{}), test.workingDirectory)
			if err != nil {
				t.Fatal(err)
			}
			err = execution.CallMain(context.Background(), test.args)
			var entryErr *sandbox.EntryPointError
			if !errors.As(err, &entryErr) || entryErr.ExitCode != test.wantExit {
				t.Errorf("error = %v, want exit %d", err, test.wantExit)
			}
		})
	}
}

func TestSignModuleInitializationFailure(t *testing.T) {
	cause := errors.New("no avbtool")
	handle := NewHandle(func(context.Context) (*Environment, error) { return nil, cause })
	_, err := instantiate(t, handle, "/jobs/j")

	var initErr *sandbox.ModuleInitError
	var backendErr *InitializationError
	if !errors.As(err, &initErr) || !errors.As(err, &backendErr) || !errors.Is(err, cause) {
		t.Errorf("error = %v, want ModuleInitError wrapping InitializationError", err)
	}
}

func TestConfigInitializer(t *testing.T) {
	dir := t.TempDir()
	keyPEM, _ := avbtest.RSAKey(t, 2048)
	custom := []byte("custom avb public key")
	keyPath := filepath.Join(dir, "vbmeta.pem")
	customPath := filepath.Join(dir, "custom.bin")
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(customPath, custom, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Paths.State = filepath.Join(dir, "state")
	cfg.Signing.VBMetaKey = keyPath
	cfg.Signing.CustomPublicKey = customPath

	signer := &avbtest.Signer{}
	environment, err := ConfigInitializer(cfg, signer)(context.Background())
	if err != nil {
		t.Fatalf("initializer: %v", err)
	}
	if environment.Root != cfg.Paths.State || environment.Signer != avb.Signer(signer) {
		t.Errorf("environment = %+v", environment)
	}
	for name, want := range map[string][]byte{
		"rsa2048_vbmeta.pem": keyPEM,
		avb.HashFooterKey:    keyPEM,
		avb.CustomPublicKey:  custom,
	} {
		if !bytes.Equal(environment.Files[name], want) {
			t.Errorf("file %s not installed", name)
		}
	}
	if _, err := os.Stat(cfg.Paths.State); err != nil {
		t.Errorf("state directory not created: %v", err)
	}

	cfg.Signing.VBMetaKey = ""
	if _, err := ConfigInitializer(cfg, signer)(context.Background()); err == nil {
		t.Error("missing vbmeta key accepted")
	}
}

func TestConfigInitializerChecksAvbtool(t *testing.T) {
	if _, err := os.Stat("/bin/false"); err != nil {
		t.Skip("no /bin/false")
	}
	dir := t.TempDir()
	keyPEM, _ := avbtest.RSAKey(t, 2048)
	keyPath := filepath.Join(dir, "vbmeta.pem")
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Paths.State = filepath.Join(dir, "state")
	cfg.Signing.VBMetaKey = keyPath
	cfg.Signing.Python = "/bin/false"

	handle := NewHandle(ConfigInitializer(cfg, nil))
	_, err := handle.Await(context.Background())
	var initErr *InitializationError
	if !errors.As(err, &initErr) {
		t.Errorf("error = %v, want InitializationError from the avbtool version check", err)
	}
}
