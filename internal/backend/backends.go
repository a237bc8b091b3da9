package backend

import (
	"fmt"
	"os/user"
	"strings"

	"github.com/fgeck/gorestic-retention/internal/models"
	"go.uber.org/multierr"
)

type setting struct {
	key   string
	value string
}

func requireSettings(backend string, settings ...setting) error {
	var err error
	for _, s := range settings {
		if s.value == "" {
			err = multierr.Append(err, fmt.Errorf("backend.%s.%s is required", backend, s.key))
		}
	}
	return err
}

func baseEnv(host string) []string {
	if host == "" {
		return nil
	}
	return []string{"RESTIC_HOST=" + host}
}

// Local stores the repository on a local path.
type Local struct{}

func (Local) Configured(s models.BackendSettings) bool {
	return s.Local != nil && s.Local.Name != ""
}

func (Local) ResticConfig(s models.BackendSettings, host string) (models.ResticConfig, error) {
	c := s.Local
	if c == nil {
		return models.ResticConfig{}, fmt.Errorf("backend.local is not configured")
	}
	if err := requireSettings("local", setting{"name", c.Name}, setting{"password", c.Password}); err != nil {
		return models.ResticConfig{}, err
	}
	return models.ResticConfig{
		Repository: c.Name,
		Password:   c.Password,
		Env:        baseEnv(host),
	}, nil
}

// SFTP stores the repository on a host reached over SFTP.
type SFTP struct{}

func (SFTP) Configured(s models.BackendSettings) bool {
	return s.SFTP != nil && s.SFTP.Name != ""
}

func (SFTP) ResticConfig(s models.BackendSettings, host string) (models.ResticConfig, error) {
	c := s.SFTP
	if c == nil {
		return models.ResticConfig{}, fmt.Errorf("backend.sftp is not configured")
	}
	if err := requireSettings("sftp",
		setting{"hostname", c.Hostname},
		setting{"name", c.Name},
		setting{"password", c.Password},
	); err != nil {
		return models.ResticConfig{}, err
	}

	target := c.Hostname
	if c.Username != "" {
		target = c.Username + "@" + target
	}
	return models.ResticConfig{
		Repository: fmt.Sprintf("sftp:%s:%s", target, c.Name),
		Password:   c.Password,
		Env:        baseEnv(host),
	}, nil
}

// SSHTarget returns the host checked before backing up.
func (SFTP) SSHTarget(s models.BackendSettings) (models.SSHTarget, error) {
	c := s.SFTP
	if c == nil || c.Hostname == "" {
		return models.SSHTarget{}, fmt.Errorf("backend.sftp.hostname is required")
	}
	username := c.Username
	if username == "" {
		if u, err := user.Current(); err == nil {
			username = u.Username
		}
	}
	port := c.Port
	if port == 0 {
		port = 22
	}
	return models.SSHTarget{
		Host:           c.Hostname,
		Port:           port,
		Username:       username,
		KeyPath:        c.KeyPath,
		KnownHostsPath: c.KnownHostsPath,
	}, nil
}

// B2 stores the repository in a Backblaze B2 bucket.
type B2 struct{}

func (B2) Configured(s models.BackendSettings) bool {
	return s.B2 != nil && s.B2.Name != ""
}

func (B2) ResticConfig(s models.BackendSettings, host string) (models.ResticConfig, error) {
	c := s.B2
	if c == nil {
		return models.ResticConfig{}, fmt.Errorf("backend.b2 is not configured")
	}
	if err := requireSettings("b2",
		setting{"bucket_name", c.BucketName},
		setting{"name", c.Name},
		setting{"password", c.Password},
		setting{"account_id", c.AccountID},
		setting{"account_key", c.AccountKey},
	); err != nil {
		return models.ResticConfig{}, err
	}
	return models.ResticConfig{
		Repository: fmt.Sprintf("b2:%s:%s", c.BucketName, c.Name),
		Password:   c.Password,
		Env: append(baseEnv(host),
			"B2_ACCOUNT_ID="+c.AccountID,
			"B2_ACCOUNT_KEY="+c.AccountKey,
		),
	}, nil
}

// Swift stores the repository in an OpenStack Swift container.
type Swift struct{}

func (Swift) Configured(s models.BackendSettings) bool {
	return s.Swift != nil && s.Swift.Name != ""
}

func (Swift) ResticConfig(s models.BackendSettings, host string) (models.ResticConfig, error) {
	c := s.Swift
	if c == nil {
		return models.ResticConfig{}, fmt.Errorf("backend.swift is not configured")
	}
	if err := requireSettings("swift",
		setting{"auth_url", c.AuthURL},
		setting{"username", c.Username},
		setting{"password", c.Password},
		setting{"container_name", c.ContainerName},
		setting{"name", c.Name},
		setting{"restic_password", c.ResticPassword},
	); err != nil {
		return models.ResticConfig{}, err
	}
	return models.ResticConfig{
		Repository: fmt.Sprintf("swift:%s:/%s", c.ContainerName, c.Name),
		Password:   c.ResticPassword,
		Env: append(baseEnv(host),
			"OS_AUTH_URL="+c.AuthURL,
			"OS_PROJECT_ID="+c.ProjectID,
			"OS_PROJECT_NAME="+c.ProjectName,
			"OS_PROJECT_DOMAIN_NAME="+c.ProjectDomainName,
			"OS_USER_DOMAIN_NAME="+c.ProjectDomainName,
			"OS_REGION_NAME="+c.RegionName,
			"OS_USERNAME="+c.Username,
			"OS_PASSWORD="+c.Password,
		),
	}, nil
}

func awsEnv(host, accessKeyID, secretAccessKey string) []string {
	return append(baseEnv(host),
		"AWS_ACCESS_KEY_ID="+accessKeyID,
		"AWS_SECRET_ACCESS_KEY="+secretAccessKey,
	)
}

// S3 stores the repository in an S3 or S3-compatible bucket.
type S3 struct{}

func (S3) Configured(s models.BackendSettings) bool {
	return s.S3 != nil && s.S3.Name != ""
}

// s3Base strips the s3: scheme and a trailing /<bucket> from url so that
// both "s3.example.com" and "s3:s3.example.com/<bucket>" work.
func s3Base(url, bucket string) string {
	base := strings.TrimPrefix(url, "s3:")
	base = strings.Trim(base, "/")
	base = strings.TrimSuffix(base, "/"+bucket)
	return strings.Trim(base, "/")
}

func (S3) ResticConfig(s models.BackendSettings, host string) (models.ResticConfig, error) {
	c := s.S3
	if c == nil {
		return models.ResticConfig{}, fmt.Errorf("backend.s3 is not configured")
	}
	if err := requireSettings("s3",
		setting{"url", c.URL},
		setting{"name", c.Name},
		setting{"password", c.Password},
		setting{"access_key_id", c.AccessKeyID},
		setting{"secret_access_key", c.SecretAccessKey},
	); err != nil {
		return models.ResticConfig{}, err
	}
	cfg := models.ResticConfig{
		Repository: fmt.Sprintf("s3:%s/%s", s3Base(c.URL, c.Name), c.Name),
		Password:   c.Password,
		Env:        awsEnv(host, c.AccessKeyID, c.SecretAccessKey),
	}
	if c.Region != "" {
		cfg.Env = append(cfg.Env, "AWS_DEFAULT_REGION="+c.Region)
	}
	return cfg, nil
}

func (S3) BucketTarget(s models.BackendSettings) (models.BucketTarget, error) {
	c := s.S3
	if c == nil || c.URL == "" || c.Name == "" {
		return models.BucketTarget{}, fmt.Errorf("backend.s3.url and backend.s3.name are required")
	}
	endpoint := s3Base(c.URL, c.Name)
	return models.BucketTarget{
		Endpoint:        endpoint,
		Bucket:          c.Name,
		Region:          c.Region,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		PathStyle:       !strings.Contains(endpoint, "amazonaws.com"),
	}, nil
}

// R2 stores the repository in a Cloudflare R2 bucket.
type R2 struct{}

func (R2) Configured(s models.BackendSettings) bool {
	return s.R2 != nil && s.R2.Name != ""
}

func r2Endpoint(accountID string) string {
	return accountID + ".r2.cloudflarestorage.com"
}

func (R2) ResticConfig(s models.BackendSettings, host string) (models.ResticConfig, error) {
	c := s.R2
	if c == nil {
		return models.ResticConfig{}, fmt.Errorf("backend.r2 is not configured")
	}
	if err := requireSettings("r2",
		setting{"account_id", c.AccountID},
		setting{"name", c.Name},
		setting{"password", c.Password},
		setting{"access_key_id", c.AccessKeyID},
		setting{"secret_access_key", c.SecretAccessKey},
	); err != nil {
		return models.ResticConfig{}, err
	}
	return models.ResticConfig{
		Repository: fmt.Sprintf("s3:%s/%s", r2Endpoint(c.AccountID), c.Name),
		Password:   c.Password,
		Env:        awsEnv(host, c.AccessKeyID, c.SecretAccessKey),
	}, nil
}

func (R2) BucketTarget(s models.BackendSettings) (models.BucketTarget, error) {
	c := s.R2
	if c == nil || c.AccountID == "" || c.Name == "" {
		return models.BucketTarget{}, fmt.Errorf("backend.r2.account_id and backend.r2.name are required")
	}
	return models.BucketTarget{
		Endpoint:        r2Endpoint(c.AccountID),
		Bucket:          c.Name,
		Region:          "auto",
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		PathStyle:       true,
	}, nil
}

// Oracle stores the repository in Oracle Object Storage through its S3
// compatibility API.
type Oracle struct{}

func (Oracle) Configured(s models.BackendSettings) bool {
	return s.Oracle != nil && s.Oracle.Name != ""
}

func oracleEndpoint(namespace, region string) string {
	return fmt.Sprintf("%s.compat.objectstorage.%s.oraclecloud.com", namespace, region)
}

func (Oracle) ResticConfig(s models.BackendSettings, host string) (models.ResticConfig, error) {
	c := s.Oracle
	if c == nil {
		return models.ResticConfig{}, fmt.Errorf("backend.oracle is not configured")
	}
	if err := requireSettings("oracle",
		setting{"namespace", c.Namespace},
		setting{"region", c.Region},
		setting{"name", c.Name},
		setting{"password", c.Password},
		setting{"access_key_id", c.AccessKeyID},
		setting{"secret_access_key", c.SecretAccessKey},
	); err != nil {
		return models.ResticConfig{}, err
	}
	return models.ResticConfig{
		Repository: fmt.Sprintf("s3:%s/%s", oracleEndpoint(c.Namespace, c.Region), c.Name),
		Password:   c.Password,
		Env:        awsEnv(host, c.AccessKeyID, c.SecretAccessKey),
	}, nil
}

func (Oracle) BucketTarget(s models.BackendSettings) (models.BucketTarget, error) {
	c := s.Oracle
	if c == nil || c.Namespace == "" || c.Region == "" || c.Name == "" {
		return models.BucketTarget{}, fmt.Errorf("backend.oracle.namespace, region and name are required")
	}
	return models.BucketTarget{
		Endpoint:        oracleEndpoint(c.Namespace, c.Region),
		Bucket:          c.Name,
		Region:          c.Region,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		PathStyle:       true,
	}, nil
}

// Rest stores the repository on a restic REST server.
type Rest struct{}

func (Rest) Configured(s models.BackendSettings) bool {
	return s.Rest != nil && s.Rest.Name != ""
}

func (Rest) ResticConfig(s models.BackendSettings, host string) (models.ResticConfig, error) {
	c := s.Rest
	if c == nil {
		return models.ResticConfig{}, fmt.Errorf("backend.rest is not configured")
	}
	if err := requireSettings("rest",
		setting{"url", c.URL},
		setting{"name", c.Name},
		setting{"password", c.Password},
	); err != nil {
		return models.ResticConfig{}, err
	}

	base := strings.TrimSuffix(strings.TrimPrefix(c.URL, "rest:"), "/")
	env := baseEnv(host)
	if c.RestUser != "" {
		env = append(env, "RESTIC_REST_USERNAME="+c.RestUser)
	}
	if c.RestPassword != "" {
		env = append(env, "RESTIC_REST_PASSWORD="+c.RestPassword)
	}
	return models.ResticConfig{
		Repository: fmt.Sprintf("rest:%s/%s", base, c.Name),
		Password:   c.Password,
		Env:        env,
	}, nil
}
