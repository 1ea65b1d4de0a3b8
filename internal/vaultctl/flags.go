package vaultctl

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/catalogkeeper/internal/vault/keystores"
	"github.com/spf13/pflag"
)

// kindValue is a pflag.Value restricted to the known key store kinds.
type kindValue string

func (k *kindValue) String() string { return string(*k) }

func (k *kindValue) Set(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))
	if !slices.Contains(keystores.Kinds, s) {
		return fmt.Errorf("must be one of %s", strings.Join(keystores.Kinds, ", "))
	}
	*k = kindValue(s)
	return nil
}

func (k *kindValue) Type() string { return "kind" }

// storeFlags describes one key store on the command line. The source store
// uses bare flag names and the copy destination the same names with "to-".
type storeFlags struct {
	kind kindValue
	path string
	dsn  string
	s3   keystores.S3Config
}

func newStoreFlags() *storeFlags {
	return &storeFlags{
		kind: kindValue(keystores.KindFile),
		path: "data/vault.json",
		s3: keystores.S3Config{
			Bucket: "vault",
			Region: "us-east-1",
			Object: "keys/vault.json",
		},
	}
}

func (s *storeFlags) register(fs *pflag.FlagSet, prefix, what string) {
	fs.Var(&s.kind, prefix+"store", what+" key store kind ("+strings.Join(keystores.Kinds, ", ")+")")
	fs.StringVar(&s.path, prefix+"path", s.path, what+" file (file, sqlite)")
	fs.StringVar(&s.dsn, prefix+"dsn", s.dsn, what+" PostgreSQL DSN (postgres)")
	fs.StringVar(&s.s3.BaseEndpoint, prefix+"s3-endpoint", s.s3.BaseEndpoint, what+" S3 endpoint, empty for AWS")
	fs.StringVar(&s.s3.Bucket, prefix+"s3-bucket", s.s3.Bucket, what+" S3 bucket")
	fs.StringVar(&s.s3.Region, prefix+"s3-region", s.s3.Region, what+" S3 region")
	fs.StringVar(&s.s3.Object, prefix+"s3-object", s.s3.Object, what+" S3 object key")
	fs.StringVar(&s.s3.RootUser, prefix+"s3-user", s.s3.RootUser, what+" S3 access key")
	fs.StringVar(&s.s3.RootPassword, prefix+"s3-password", s.s3.RootPassword, what+" S3 secret key")
}

func (s *storeFlags) config() keystores.Config {
	return keystores.Config{
		Kind: string(s.kind),
		Path: s.path,
		DSN:  s.dsn,
		S3:   s.s3,
	}
}

// describe names the store without credentials.
func (s *storeFlags) describe() string {
	switch string(s.kind) {
	case keystores.KindS3:
		return fmt.Sprintf("s3://%s/%s", s.s3.Bucket, s.s3.Object)
	case keystores.KindPostgres:
		return "postgres"
	default:
		return fmt.Sprintf("%s:%s", s.kind, s.path)
	}
}
