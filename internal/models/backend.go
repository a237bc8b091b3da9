package models

// BackendSettings holds the per-backend connection settings. A backend is
// considered configured when its section is present and Name is set.
type BackendSettings struct {
	Name   string // short name or alias; empty picks the first configured backend
	Local  *LocalBackend
	SFTP   *SFTPBackend
	B2     *B2Backend
	Swift  *SwiftBackend
	S3     *S3Backend
	R2     *R2Backend
	Oracle *OracleBackend
	Rest   *RestBackend
}

// LocalBackend is a repository on a local path.
type LocalBackend struct {
	Name     string // repository path
	Password string
}

// SFTPBackend is a repository reachable over SFTP.
type SFTPBackend struct {
	Hostname       string // host or ssh_config alias
	Name           string // repository directory on the host
	Password       string
	Port           int
	Username       string
	KeyPath        string
	KnownHostsPath string // empty skips host key verification in preflight
}

// B2Backend is a Backblaze B2 repository.
type B2Backend struct {
	BucketName string
	Name       string
	Password   string
	AccountID  string
	AccountKey string
}

// SwiftBackend is an OpenStack Swift repository.
type SwiftBackend struct {
	AuthURL           string
	ProjectID         string
	ProjectName       string
	ProjectDomainName string
	RegionName        string
	Username          string
	Password          string // OpenStack user password
	ContainerName     string
	Name              string
	ResticPassword    string
}

// S3Backend is an S3 or S3-compatible repository. Name is the bucket.
type S3Backend struct {
	URL             string
	Name            string
	Password        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// R2Backend is a Cloudflare R2 repository. Name is the bucket.
type R2Backend struct {
	AccountID       string
	Name            string
	Password        string
	AccessKeyID     string
	SecretAccessKey string
}

// OracleBackend is an Oracle Object Storage repository through its S3
// compatibility API. Name is the bucket.
type OracleBackend struct {
	Namespace       string
	Region          string
	Name            string
	Password        string
	AccessKeyID     string
	SecretAccessKey string
}

// RestBackend is a restic REST server repository.
type RestBackend struct {
	URL          string
	Name         string
	Password     string
	RestUser     string // optional, for REST server auth
	RestPassword string // optional, for REST server auth
}
