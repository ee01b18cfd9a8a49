package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	if loader == nil {
		t.Fatal("expected non-nil loader")
	}
	if loader.v == nil {
		t.Fatal("expected non-nil viper instance")
	}
}

func TestLoader_LoadWithValidConfig(t *testing.T) {
	tempDir := os.TempDir()
	configFile := filepath.Join(tempDir, "test-config.yaml")
	defer os.Remove(configFile)

	configContent := `
application:
  name: test-app
  version: 1.0.0

kafka:
  bootstrap_servers:
    - localhost:9092
  consumer:
    group_id: test-group
    topics:
      - test-topic

store:
  type: file
  category: default
  options:
    file_path: /tmp/test
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to create test config file: %v", err)
	}

	loader := NewLoader()
	config, err := loader.Load(configFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config == nil {
		t.Fatal("expected non-nil config")
	}

	if config.Application.Name != "test-app" {
		t.Errorf("Application.Name = %s, want test-app", config.Application.Name)
	}
	if config.Kafka.Consumer.GroupID != "test-group" {
		t.Errorf("Kafka.Consumer.GroupID = %s, want test-group", config.Kafka.Consumer.GroupID)
	}
	if len(config.Kafka.Consumer.Topics) != 1 || config.Kafka.Consumer.Topics[0] != "test-topic" {
		t.Errorf("Kafka.Consumer.Topics = %v, want [test-topic]", config.Kafka.Consumer.Topics)
	}
	if config.Store.Type != "file" {
		t.Errorf("Store.Type = %s, want file", config.Store.Type)
	}
}

func TestLoader_LoadWithRecursiveStoreTree(t *testing.T) {
	tempDir := os.TempDir()
	configFile := filepath.Join(tempDir, "test-config-tree.yaml")
	defer os.Remove(configFile)

	configContent := `
application:
  name: test-app

kafka:
  bootstrap_servers:
    - localhost:9092
  consumer:
    group_id: test-group
    topics:
      - test-topic

store:
  type: category
  model:
    type: buffer
    primary:
      type: network
      options:
        remote_host: localhost
        remote_port: "9999"
    secondary:
      type: file
      options:
        file_path: /tmp/test/buffer
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to create test config file: %v", err)
	}

	loader := NewLoader()
	config, err := loader.Load(configFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.Store.Type != "category" {
		t.Fatalf("Store.Type = %s, want category", config.Store.Type)
	}
	if config.Store.Model == nil {
		t.Fatal("expected Store.Model to be populated")
	}
	if config.Store.Model.Type != "buffer" {
		t.Errorf("Store.Model.Type = %s, want buffer", config.Store.Model.Type)
	}
	if config.Store.Model.Primary == nil || config.Store.Model.Primary.Type != "network" {
		t.Error("expected Store.Model.Primary to be a network store")
	}
	if config.Store.Model.Secondary == nil || config.Store.Model.Secondary.Type != "file" {
		t.Error("expected Store.Model.Secondary to be a file store")
	}
}

func TestLoader_LoadWithMissingFile(t *testing.T) {
	loader := NewLoader()

	// Loading a non-existent file succeeds at the read step (defaults +
	// env vars apply) but fails validation since required fields like
	// store.type are still unset.
	_, err := loader.Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected validation error for missing required fields, got nil")
	}
}

func TestLoader_setDefaults(t *testing.T) {
	loader := NewLoader()
	loader.setDefaults()

	if loader.v.GetString("application.name") != "logaggd" {
		t.Error("default application.name not set correctly")
	}
	if loader.v.GetString("kafka.security_protocol") != "SASL_SSL" {
		t.Error("default kafka.security_protocol not set correctly")
	}
	if loader.v.GetInt("processing.periodic_check_ms") != 2000 {
		t.Error("default processing.periodic_check_ms not set correctly")
	}
	if loader.v.GetInt("observability.health.port") != 8080 {
		t.Error("default observability.health.port not set correctly")
	}
}
