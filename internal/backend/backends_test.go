package backend

import (
	"testing"

	"github.com/fgeck/gorestic-retention/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_ResticConfig(t *testing.T) {
	cfg, err := Local{}.ResticConfig(models.BackendSettings{
		Local: &models.LocalBackend{Name: "/srv/backup", Password: "secret"},
	}, "web1")

	require.NoError(t, err)
	assert.Equal(t, models.ResticConfig{
		Repository: "/srv/backup",
		Password:   "secret",
		Env:        []string{"RESTIC_HOST=web1"},
	}, cfg)
}

func TestLocal_ResticConfig_MissingSettings(t *testing.T) {
	_, err := Local{}.ResticConfig(models.BackendSettings{Local: &models.LocalBackend{}}, "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.local.name is required")
	assert.Contains(t, err.Error(), "backend.local.password is required")

	_, err = Local{}.ResticConfig(models.BackendSettings{}, "")
	assert.ErrorContains(t, err, "not configured")
}

func TestSFTP_ResticConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.SFTPBackend
		want string
	}{
		{"host alias", models.SFTPBackend{Hostname: "nas", Name: "backups/app", Password: "p"}, "sftp:nas:backups/app"},
		{"with user", models.SFTPBackend{Hostname: "nas.lan", Username: "restic", Name: "/srv/repo", Password: "p"}, "sftp:restic@nas.lan:/srv/repo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := SFTP{}.ResticConfig(models.BackendSettings{SFTP: &tt.cfg}, "")

			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Repository)
			assert.Empty(t, cfg.Env)
		})
	}
}

func TestSFTP_SSHTarget(t *testing.T) {
	target, err := SFTP{}.SSHTarget(models.BackendSettings{SFTP: &models.SFTPBackend{
		Hostname: "nas",
		Username: "restic",
		KeyPath:  "/keys/id",
	}})

	require.NoError(t, err)
	assert.Equal(t, models.SSHTarget{Host: "nas", Port: 22, Username: "restic", KeyPath: "/keys/id"}, target)

	_, err = SFTP{}.SSHTarget(models.BackendSettings{})
	assert.Error(t, err)
}

func TestB2_ResticConfig(t *testing.T) {
	cfg, err := B2{}.ResticConfig(models.BackendSettings{B2: &models.B2Backend{
		BucketName: "bucket",
		Name:       "repo",
		Password:   "p",
		AccountID:  "id",
		AccountKey: "key",
	}}, "")

	require.NoError(t, err)
	assert.Equal(t, "b2:bucket:repo", cfg.Repository)
	assert.Equal(t, []string{"B2_ACCOUNT_ID=id", "B2_ACCOUNT_KEY=key"}, cfg.Env)
}

func TestSwift_ResticConfig(t *testing.T) {
	cfg, err := Swift{}.ResticConfig(models.BackendSettings{Swift: &models.SwiftBackend{
		AuthURL:           "https://auth.example/v3",
		ProjectID:         "pid",
		ProjectName:       "backups",
		ProjectDomainName: "dom",
		RegionName:        "NL",
		Username:          "user",
		Password:          "ospass",
		ContainerName:     "backups",
		Name:              "app",
		ResticPassword:    "repopass",
	}}, "host1")

	require.NoError(t, err)
	assert.Equal(t, "swift:backups:/app", cfg.Repository)
	assert.Equal(t, "repopass", cfg.Password)
	assert.Contains(t, cfg.Env, "RESTIC_HOST=host1")
	assert.Contains(t, cfg.Env, "OS_PASSWORD=ospass")
	assert.Contains(t, cfg.Env, "OS_USER_DOMAIN_NAME=dom")
	assert.Contains(t, cfg.Env, "OS_REGION_NAME=NL")
}

func TestS3_ResticConfig_URLNormalization(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"s3.example.com", "s3:s3.example.com/bucket"},
		{"s3:s3.example.com", "s3:s3.example.com/bucket"},
		{"s3:s3.example.com/bucket", "s3:s3.example.com/bucket"},
		{"https://s3.example.com/bucket/", "s3:https://s3.example.com/bucket"},
		{"s3.amazonaws.com/", "s3:s3.amazonaws.com/bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			cfg, err := S3{}.ResticConfig(models.BackendSettings{S3: &models.S3Backend{
				URL:             tt.url,
				Name:            "bucket",
				Password:        "p",
				AccessKeyID:     "ak",
				SecretAccessKey: "sk",
			}}, "")

			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Repository)
			assert.Equal(t, []string{"AWS_ACCESS_KEY_ID=ak", "AWS_SECRET_ACCESS_KEY=sk"}, cfg.Env)
		})
	}
}

func TestS3_BucketTarget(t *testing.T) {
	target, err := S3{}.BucketTarget(models.BackendSettings{S3: &models.S3Backend{
		URL:    "s3:minio.lan:9000/bucket",
		Name:   "bucket",
		Region: "us-east-1",
	}})

	require.NoError(t, err)
	assert.Equal(t, "minio.lan:9000", target.Endpoint)
	assert.Equal(t, "bucket", target.Bucket)
	assert.True(t, target.PathStyle)

	aws, err := S3{}.BucketTarget(models.BackendSettings{S3: &models.S3Backend{URL: "s3.amazonaws.com", Name: "b"}})
	require.NoError(t, err)
	assert.False(t, aws.PathStyle)
}

func TestR2_ResticConfig(t *testing.T) {
	settings := models.BackendSettings{R2: &models.R2Backend{
		AccountID:       "acc",
		Name:            "bucket",
		Password:        "p",
		AccessKeyID:     "ak",
		SecretAccessKey: "sk",
	}}

	cfg, err := R2{}.ResticConfig(settings, "")
	require.NoError(t, err)
	assert.Equal(t, "s3:acc.r2.cloudflarestorage.com/bucket", cfg.Repository)

	target, err := R2{}.BucketTarget(settings)
	require.NoError(t, err)
	assert.Equal(t, "acc.r2.cloudflarestorage.com", target.Endpoint)
	assert.Equal(t, "auto", target.Region)
}

func TestOracle_ResticConfig(t *testing.T) {
	settings := models.BackendSettings{Oracle: &models.OracleBackend{
		Namespace:       "ns",
		Region:          "eu-amsterdam-1",
		Name:            "bucket",
		Password:        "p",
		AccessKeyID:     "ak",
		SecretAccessKey: "sk",
	}}

	cfg, err := Oracle{}.ResticConfig(settings, "")
	require.NoError(t, err)
	assert.Equal(t, "s3:ns.compat.objectstorage.eu-amsterdam-1.oraclecloud.com/bucket", cfg.Repository)

	target, err := Oracle{}.BucketTarget(settings)
	require.NoError(t, err)
	assert.Equal(t, "eu-amsterdam-1", target.Region)
	assert.True(t, target.PathStyle)
}

func TestRest_ResticConfig(t *testing.T) {
	cfg, err := Rest{}.ResticConfig(models.BackendSettings{Rest: &models.RestBackend{
		URL:          "rest:http://192.168.1.100:8000/",
		Name:         "backup",
		Password:     "p",
		RestUser:     "user",
		RestPassword: "pass",
	}}, "")

	require.NoError(t, err)
	assert.Equal(t, "rest:http://192.168.1.100:8000/backup", cfg.Repository)
	assert.Equal(t, []string{"RESTIC_REST_USERNAME=user", "RESTIC_REST_PASSWORD=pass"}, cfg.Env)
}

func TestBackends_ProbeInterfaces(t *testing.T) {
	r := Default()

	for _, name := range []string{"s3", "r2", "oracle"} {
		reg, ok := r.Get(name)
		require.True(t, ok)
		_, isBucket := reg.Backend.(BucketBackend)
		assert.True(t, isBucket, name)
	}

	reg, _ := r.Get("sftp")
	_, isSSH := reg.Backend.(SSHBackend)
	assert.True(t, isSSH)

	reg, _ = r.Get("local")
	_, isBucket := reg.Backend.(BucketBackend)
	assert.False(t, isBucket)
}
