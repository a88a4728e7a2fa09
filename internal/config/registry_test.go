package config

import (
	"errors"
	"testing"

	"github.com/attestia/attestia/pkg/provider/llm"
	"github.com/attestia/attestia/pkg/provider/llm/mock"
)

func TestRegistryCreateProvider(t *testing.T) {
	r := NewRegistry()
	r.RegisterProvider("openai", func(entry ProviderConfig) (llm.Provider, error) {
		if entry.APIKey == "" {
			return nil, errors.New("api key required")
		}
		return &mock.Provider{}, nil
	})

	p, err := r.CreateProvider(ProviderConfig{Name: "primary", Family: "openai", APIKey: "sk-x"})
	if err != nil {
		t.Fatalf("CreateProvider: %v", err)
	}
	if p == nil {
		t.Fatal("provider is nil")
	}

	if _, err := r.CreateProvider(ProviderConfig{Name: "primary", Family: "openai"}); err == nil {
		t.Error("expected factory error to propagate")
	}
}

func TestRegistryUnknownFamily(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateProvider(ProviderConfig{Name: "p", Family: "watsonx"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistryOverwrite(t *testing.T) {
	r := NewRegistry()
	r.RegisterProvider("openai", func(ProviderConfig) (llm.Provider, error) {
		return nil, errors.New("first")
	})
	r.RegisterProvider("openai", func(ProviderConfig) (llm.Provider, error) {
		return &mock.Provider{}, nil
	})

	if _, err := r.CreateProvider(ProviderConfig{Family: "openai"}); err != nil {
		t.Errorf("overwritten factory should win, got %v", err)
	}
	if got := len(r.Families()); got != 1 {
		t.Errorf("families = %d, want 1", got)
	}
}
