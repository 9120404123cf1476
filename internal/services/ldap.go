package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/dailydues/backend/internal/config"
	"github.com/go-ldap/ldap/v3"
)

// DirectoryUser is what a successful directory bind tells us about a person.
type DirectoryUser struct {
	DN       string
	Username string
	Email    string
	Nickname string
}

// Directory verifies credentials against an external user store.
type Directory interface {
	Enabled() bool
	Authenticate(ctx context.Context, username, password string) (*DirectoryUser, error)
}

type LDAPDirectory struct {
	cfg     config.LDAPConfig
	timeout time.Duration
}

func NewLDAPDirectory(cfg config.LDAPConfig) *LDAPDirectory {
	if cfg.UserFilter == "" {
		cfg.UserFilter = "(uid=%s)"
	}
	return &LDAPDirectory{cfg: cfg, timeout: 10 * time.Second}
}

func (d *LDAPDirectory) Enabled() bool {
	return d.cfg.Enabled && d.cfg.Host != ""
}

func (d *LDAPDirectory) url() string {
	scheme := "ldap"
	if d.cfg.UseSSL {
		scheme = "ldaps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, d.cfg.Host, d.cfg.Port)
}

// Authenticate finds the user with the service account, then binds as the user.
func (d *LDAPDirectory) Authenticate(ctx context.Context, username, password string) (*DirectoryUser, error) {
	if !d.Enabled() {
		return nil, newValidation("directory login is not enabled")
	}
	if password == "" {
		return nil, errInvalidCredentials
	}

	opts := []ldap.DialOpt{ldap.DialWithDialer(dialerFor(ctx, d.timeout))}
	if d.cfg.UseSSL {
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{ServerName: d.cfg.Host}))
	}
	conn, err := ldap.DialURL(d.url(), opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to directory: %w", err)
	}
	defer conn.Close()
	conn.SetTimeout(d.timeout)

	if d.cfg.BindDN != "" {
		if err := conn.Bind(d.cfg.BindDN, d.cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("service account bind: %w", err)
		}
	}

	search := ldap.NewSearchRequest(
		d.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, int(d.timeout/time.Second), false,
		fmt.Sprintf(d.cfg.UserFilter, ldap.EscapeFilter(username)),
		[]string{"dn", "cn", "mail", "uid", "sAMAccountName"},
		nil,
	)
	result, err := conn.Search(search)
	if err != nil {
		return nil, fmt.Errorf("directory search: %w", err)
	}
	if len(result.Entries) != 1 {
		return nil, errInvalidCredentials
	}

	entry := result.Entries[0]
	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, errInvalidCredentials
	}

	user := &DirectoryUser{
		DN:       entry.DN,
		Username: entry.GetAttributeValue("uid"),
		Email:    entry.GetAttributeValue("mail"),
		Nickname: entry.GetAttributeValue("cn"),
	}
	// Active Directory
	if user.Username == "" {
		user.Username = entry.GetAttributeValue("sAMAccountName")
	}
	if user.Username == "" {
		user.Username = username
	}
	return user, nil
}

func dialerFor(ctx context.Context, timeout time.Duration) *net.Dialer {
	d := &net.Dialer{Timeout: timeout}
	if deadline, ok := ctx.Deadline(); ok {
		d.Deadline = deadline
	}
	return d
}
