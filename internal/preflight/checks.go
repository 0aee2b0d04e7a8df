package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"avatarmig/internal/naming"
	"avatarmig/internal/objectstore"
	"avatarmig/internal/services/credentials"
	"avatarmig/internal/signing"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckReadableDirectory verifies that the directory exists and can be listed.
func CheckReadableDirectory(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "read ok")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckFreeSpace verifies the filesystem holding path has at least minBytes available.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free", humanize.IBytes(free))
	if free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s, need %s", detail, humanize.IBytes(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckNamingSecret verifies the external-name key is long enough.
func CheckNamingSecret(secret string) Result {
	const name = "Naming secret"
	if len(secret) < naming.MinSecretLength {
		return Result{Name: name, Detail: fmt.Sprintf("must be at least %d bytes (have %d)", naming.MinSecretLength, len(secret))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d bytes", len(secret))}
}

// CheckSigningKeys loads every configured publisher key.
func CheckSigningKeys(ctx context.Context, keys signing.KeyConfig, objects objectstore.GetObjectAPI) Result {
	const name = "Signing keys"
	var opts []signing.StoreOption
	if objects != nil {
		opts = append(opts, signing.WithObjectClient(objects))
	}
	store, err := signing.NewSecretStore(ctx, keys, opts...)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	signer := signing.NewSigner(store)
	publishers := store.Publishers()
	names := make([]string, 0, len(publishers))
	for _, p := range publishers {
		if err := signer.Check(p); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s: %v", p, err)}
		}
		names = append(names, string(p))
	}
	return Result{Name: name, Passed: true, Detail: "loaded " + strings.Join(names, ", ") + " (sign/verify ok)"}
}

// CheckToken verifies that a bearer token can be obtained.
func CheckToken(ctx context.Context, tokens credentials.TokenSource) Result {
	const name = "Access token"

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	token, err := tokens.Token(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	if token == "" {
		return Result{Name: name, Detail: "identity provider returned an empty token"}
	}
	return Result{Name: name, Passed: true, Detail: "token issued"}
}

// CheckEndpoint verifies that baseURL answers HTTP. Any response, including
// 401/403/404, proves reachability; authentication is covered by CheckToken.
func CheckEndpoint(ctx context.Context, name, baseURL string) Result {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("server error (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (%d)", resp.StatusCode)}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (unreachable)"
	}
	return err.Error()
}
