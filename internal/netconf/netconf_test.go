package netconf

import (
	"context"
	"errors"
	"testing"
)

func TestLocalIP(t *testing.T) {
	r := NewRunner(nil)

	var gotName string
	r.run = func(_ context.Context, name string, _ ...string) ([]byte, error) {
		gotName = name
		return []byte("192.168.10.1\n"), nil
	}

	ip, err := r.LocalIP(context.Background())
	if err != nil {
		t.Fatalf("LocalIP() error = %v", err)
	}
	if ip != "192.168.10.1" {
		t.Errorf("LocalIP() = %q, want trimmed address", ip)
	}
	if gotName != checkIPLocalScript {
		t.Errorf("command = %s, want %s", gotName, checkIPLocalScript)
	}
}

func TestCommandFailure(t *testing.T) {
	r := NewRunner(nil)
	r.run = func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return []byte("no such network\n"), errors.New("exit status 1")
	}

	err := r.AddWifi(context.Background(), "Dhome", "secret")
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("AddWifi() error = %v, want ErrCommandFailed", err)
	}
}

func TestSetBrokerPassword(t *testing.T) {
	r := NewRunner(nil)

	var gotArgs []string
	r.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return nil, nil
	}

	if err := r.SetBrokerPassword(context.Background(), "tok"); err != nil {
		t.Fatalf("SetBrokerPassword() error = %v", err)
	}
	want := []string{"mosquitto_passwd", "-b", mosquittoPasswd, brokerUser, "tok"}
	if len(gotArgs) != len(want) {
		t.Fatalf("args = %v, want %v", gotArgs, want)
	}
	for i := range want {
		if gotArgs[i] != want[i] {
			t.Errorf("arg %d = %s, want %s", i, gotArgs[i], want[i])
		}
	}
}
