package storage

import "testing"

func TestAzureConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  AzureConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			config:  AzureConfig{AccountName: "acct", AccountKey: "key", ContainerName: "test-container"},
			wantErr: false,
		},
		{
			name:    "empty account name",
			config:  AzureConfig{AccountName: "", AccountKey: "key", ContainerName: "test-container"},
			wantErr: true,
		},
		{
			name:    "empty container name",
			config:  AzureConfig{AccountName: "acct", AccountKey: "key", ContainerName: ""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hasErr := tt.config.AccountName == "" || tt.config.ContainerName == ""
			if hasErr != tt.wantErr {
				t.Errorf("validation = %v, wantErr %v", hasErr, tt.wantErr)
			}
		})
	}
}

func TestAzureFilesystem_BlobName(t *testing.T) {
	fs := &AzureFilesystem{containerName: "test-container"}

	tests := []struct {
		path string
		want string
	}{
		{"/orders/2026/01/01/rotation_0", "orders/2026/01/01/rotation_0"},
		{"orders/2026/01/01/rotation_0", "orders/2026/01/01/rotation_0"},
		{"/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := fs.blobName(tt.path); got != tt.want {
				t.Errorf("blobName(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestAzureConfig_EndpointOverride(t *testing.T) {
	cfg := AzureConfig{
		AccountName:   "acct",
		AccountKey:    "key",
		ContainerName: "test-container",
		Endpoint:      "https://acct.blob.core.usgovcloudapi.net",
	}

	if cfg.Endpoint == "" {
		t.Error("expected endpoint override to be set")
	}
}
