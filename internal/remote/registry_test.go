package remote

import (
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"iscpctl/internal/device"
	"iscpctl/internal/iscp"
)

type fakeFinder struct {
	devices []device.Device
	err     error
	calls   int
}

func (f *fakeFinder) Discover(timeout time.Duration) ([]device.Device, error) {
	f.calls++
	return f.devices, f.err
}

func sampleDevices() []device.Device {
	return []device.Device{
		device.New("192.168.1.40:60128", "TX-NR636", device.AreaNorthAmerica, "0009B0123456"),
		device.New("192.168.1.41:60128", "TX-8050", device.AreaEuropeAsia, "0009B0ABCDEF"),
		device.New("192.168.1.42:60128", "NR-365", device.AreaJapan, ""),
	}
}

func testRegistry(devices []device.Device) (*Registry, *fakeFinder) {
	f := &fakeFinder{devices: devices}
	r := New(zerolog.Nop())
	r.Finder = f
	return r, f
}

func TestRegistry_DiscoverReplacesDevices(t *testing.T) {
	r, f := testRegistry(sampleDevices())

	if err := r.Discover(time.Second); err != nil {
		t.Fatalf("discover: %v", err)
	}
	if r.Len() != 3 {
		t.Fatalf("expected 3 devices, got %d", r.Len())
	}

	f.devices = sampleDevices()[2:]
	if err := r.Discover(time.Second); err != nil {
		t.Fatalf("second discover: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("expected list replaced with 1 device, got %d", r.Len())
	}
	if d, _ := r.Device(0); d.Model != "NR-365" {
		t.Errorf("index 0 after rediscovery: got %s, want NR-365", d.Model)
	}
}

func TestRegistry_DiscoverFailureKeepsDevices(t *testing.T) {
	r, f := testRegistry(sampleDevices())
	if err := r.Discover(time.Second); err != nil {
		t.Fatalf("discover: %v", err)
	}

	f.err = errors.New("bind failed")
	f.devices = nil
	if err := r.Discover(time.Second); err == nil {
		t.Fatal("expected discovery error")
	}
	if r.Len() != 3 {
		t.Errorf("failed discovery changed the list: got %d devices", r.Len())
	}
}

func TestRegistry_DeviceOutOfRange(t *testing.T) {
	r, _ := testRegistry(sampleDevices())
	r.Discover(time.Second)

	for _, idx := range []int{-1, 3, 100} {
		if _, ok := r.Device(idx); ok {
			t.Errorf("index %d: expected absent", idx)
		}
	}
	if d, ok := r.Device(1); !ok || d.Model != "TX-8050" {
		t.Errorf("index 1: got %+v, %v", d, ok)
	}
}

func TestRegistry_DevicesReturnsCopy(t *testing.T) {
	r, _ := testRegistry(sampleDevices())
	r.Discover(time.Second)

	list := r.Devices()
	list[0].Model = "changed"
	if d, _ := r.Device(0); d.Model != "TX-NR636" {
		t.Error("Devices exposed internal storage")
	}
}

func TestRegistry_SerializeRoundTrip(t *testing.T) {
	r, _ := testRegistry(sampleDevices())
	r.Discover(time.Second)

	text, err := r.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if !strings.Contains(text, "[[devices]]") || !strings.Contains(text, "TX-NR636") {
		t.Errorf("snapshot is not the expected TOML:\n%s", text)
	}

	back, err := Deserialize(text, zerolog.Nop())
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if !reflect.DeepEqual(back.Devices(), r.Devices()) {
		t.Errorf("round trip:\n got %+v\nwant %+v", back.Devices(), r.Devices())
	}
}

func TestRegistry_SerializeEmpty(t *testing.T) {
	r := New(zerolog.Nop())
	text, err := r.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	back, err := Deserialize(text, zerolog.Nop())
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if back.Len() != 0 {
		t.Errorf("expected empty registry, got %d devices", back.Len())
	}
}

func TestDeserialize_Invalid(t *testing.T) {
	if _, err := Deserialize("devices = [[[", zerolog.Nop()); err == nil {
		t.Error("expected error for invalid snapshot")
	}
}

func TestRegistry_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "remote.toml")

	r, _ := testRegistry(sampleDevices())
	r.Discover(time.Second)
	if err := r.SaveTo(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	assertNoTempFiles(t, filepath.Dir(path))

	loaded := LoadFrom(path, zerolog.Nop())
	if !reflect.DeepEqual(loaded.Devices(), r.Devices()) {
		t.Errorf("loaded:\n got %+v\nwant %+v", loaded.Devices(), r.Devices())
	}
}

func TestRegistry_ConcurrentSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remote.toml")
	r, _ := testRegistry(sampleDevices())
	r.Discover(time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.SaveTo(path); err != nil {
				t.Errorf("save: %v", err)
			}
		}()
	}
	wg.Wait()

	assertNoTempFiles(t, filepath.Dir(path))
	if got := LoadFrom(path, zerolog.Nop()); !reflect.DeepEqual(got.Devices(), r.Devices()) {
		t.Errorf("loaded:\n got %+v\nwant %+v", got.Devices(), r.Devices())
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary snapshot file left behind: %s", e.Name())
		}
	}
}

func TestRaw(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			received <- nil
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	if err := Raw(ln.Addr().String(), "PWR", "01"); err != nil {
		t.Fatalf("raw: %v", err)
	}

	var frame []byte
	select {
	case frame = <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}

	m, ok := iscp.Decode(frame)
	if !ok {
		t.Fatalf("received bytes are not a frame: %q", frame)
	}
	if m.Command() != "PWR" {
		t.Errorf("Command: got %s, want PWR", m.Command())
	}
	if m.Parameter() != "01" {
		t.Errorf("Parameter: got %s, want 01", m.Parameter())
	}
}

func TestRaw_InvalidCommand(t *testing.T) {
	if err := Raw("127.0.0.1:1", "PW", "01"); !errors.Is(err, iscp.ErrInvalidCommand) {
		t.Errorf("got %v, want ErrInvalidCommand", err)
	}
}

func TestLoadFrom_MissingOrInvalid(t *testing.T) {
	dir := t.TempDir()

	if r := LoadFrom(filepath.Join(dir, "missing.toml"), zerolog.Nop()); r.Len() != 0 {
		t.Errorf("missing file: expected empty registry, got %d", r.Len())
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("not = [valid"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r := LoadFrom(bad, zerolog.Nop()); r.Len() != 0 {
		t.Errorf("invalid file: expected empty registry, got %d", r.Len())
	}
}

func TestLoadAndSave_DefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	r, _ := testRegistry(sampleDevices())
	r.Discover(time.Second)
	if err := r.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	path, err := DefaultSnapshotPath()
	if err != nil {
		t.Fatalf("default path: %v", err)
	}
	if filepath.Base(filepath.Dir(path)) != "iscpctl" {
		t.Errorf("unexpected snapshot path %s", path)
	}

	if got := Load(zerolog.Nop()); got.Len() != 3 {
		t.Errorf("Load: expected 3 devices, got %d", got.Len())
	}
}

func TestShared_ConcurrentAccess(t *testing.T) {
	r, _ := testRegistry(sampleDevices())
	s := NewShared(r)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := s.Discover(time.Millisecond); err != nil {
				t.Errorf("discover: %v", err)
			}
		}()
		go func(i int) {
			defer wg.Done()
			s.Device(i % 4)
			s.Devices()
			if _, err := s.Serialize(); err != nil {
				t.Errorf("serialize: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if len(s.Devices()) != 3 {
		t.Errorf("expected 3 devices, got %d", len(s.Devices()))
	}
}

func TestShared_ConcurrentSaveAndDiscover(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remote.toml")
	r, _ := testRegistry(sampleDevices())
	s := NewShared(r)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Discover(time.Millisecond); err != nil {
				t.Errorf("discover: %v", err)
			}
			if err := s.SaveTo(path); err != nil {
				t.Errorf("save: %v", err)
			}
		}()
	}
	wg.Wait()

	assertNoTempFiles(t, filepath.Dir(path))
	if got := LoadFrom(path, zerolog.Nop()); got.Len() != 3 {
		t.Errorf("loaded %d devices, want 3", got.Len())
	}
}

func TestShared_DiscoverFailure(t *testing.T) {
	r, f := testRegistry(sampleDevices())
	s := NewShared(r)
	s.Discover(time.Second)

	f.err = errors.New("no network")
	if _, err := s.Discover(time.Second); err == nil {
		t.Fatal("expected error")
	}
	if len(s.Devices()) != 3 {
		t.Errorf("failed discovery changed the list")
	}

	s.Replace(New(zerolog.Nop()))
	if _, ok := s.Device(0); ok {
		t.Error("expected empty registry after Replace")
	}
}
