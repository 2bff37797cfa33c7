package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/client/api"
	"github.com/dmitrijs2005/cloudvault/internal/client/config"
	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/filex"
)

const downloadsDir = "downloads"

type App struct {
	config      *config.Config
	api         *api.Client
	subject     string
	reader      *bufio.Reader
	out         io.Writer
	downloadDir string
}

func NewApp(c *config.Config) (*App, error) {
	if c.ServerURL == "" {
		return nil, fmt.Errorf("server url is not set")
	}
	return &App{
		config: c,
		api:    api.NewClient(c.ServerURL, c.RequestTimeout),
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}, nil
}

func (a *App) Run(ctx context.Context) {
	log.Println("Welcome to cloudvault CLI (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) isLoggedIn() bool {
	return a.api.Authenticated()
}

func (a *App) getStatus() string {
	if a.subject == "" {
		return ""
	}
	if a.isLoggedIn() {
		return "(" + a.subject + ")"
	}
	return "(" + a.subject + ", not verified)"
}

func (a *App) RequestCode(ctx context.Context, subject string) error {
	res, err := a.api.GenerateOTP(ctx, subject, "")
	if err != nil {
		return err
	}
	a.subject = subject

	fmt.Fprintf(a.out, "%s (expires %s)\n", res.Message, res.ExpiresAt.Local().Format(time.Kitchen))
	if res.OTPForTesting != "" {
		fmt.Fprintf(a.out, "Test code: %s\n", res.OTPForTesting)
	}
	return nil
}

// Verify reads the code without echo. subject defaults to the one used by
// the last otp command.
func (a *App) Verify(ctx context.Context, subject string) error {
	if subject == "" {
		subject = a.subject
	}
	if subject == "" {
		return fmt.Errorf("no subject, run otp <subject> first")
	}

	code, err := GetSecret(a.out, "Code")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(code)

	res, err := a.api.VerifyOTP(ctx, subject, strings.TrimSpace(string(code)), "")
	if err != nil {
		return err
	}
	a.subject = subject

	fmt.Fprintf(a.out, "Signed in as %s until %s\n", subject, res.ExpiresAt.Local().Format(time.Kitchen))
	return nil
}

func (a *App) Upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	file, err := a.api.Upload(ctx, filepath.Base(path), f)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Uploaded %s (%d bytes) as %s\n", file.Name, file.Size, file.ID)
	return nil
}

func (a *App) List(ctx context.Context) error {
	files, err := a.api.ListFiles(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(a.out, "No files")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSIZE\tUPLOADED")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", f.ID, f.Name, f.Size, f.CreatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

// Share prompts for the link options. Empty answers keep the server defaults.
func (a *App) Share(ctx context.Context, fileID string) error {
	var req api.ShareRequest

	perm, err := GetSimpleText(a.reader, "Permission (view/download, empty for view)", a.out)
	if err != nil {
		return err
	}
	req.Permission = perm

	expires, err := GetSimpleText(a.reader, "Expires in (e.g. 24h, empty for never)", a.out)
	if err != nil {
		return err
	}
	if expires != "" {
		d, err := time.ParseDuration(expires)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid duration %q", expires)
		}
		req.ExpiresInSeconds = int64(d / time.Second)
	}

	limit, err := GetSimpleText(a.reader, "Max downloads (empty for unlimited)", a.out)
	if err != nil {
		return err
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid download limit %q", limit)
		}
		req.MaxDownloads = &n
	}

	password, err := GetSecret(a.out, "Password (empty for none)")
	if err != nil {
		return err
	}
	req.Password = string(password)
	common.WipeByteArray(password)

	link, err := a.api.CreateShare(ctx, fileID, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Share link: %s\n", a.api.ShareURL(*link))
	return nil
}

func (a *App) Delete(ctx context.Context, fileID string) error {
	if err := a.api.DeleteFile(ctx, fileID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted %s\n", fileID)
	return nil
}

func (a *App) Download(ctx context.Context, fileID string) error {
	d, err := a.api.DownloadFile(ctx, fileID)
	if err != nil {
		return err
	}
	return a.save(d)
}

// Fetch accepts either a bare token or a full share URL ending in /s/<token>.
func (a *App) Fetch(ctx context.Context, link string) error {
	token := link
	if i := strings.LastIndex(link, "/s/"); i >= 0 {
		token = strings.Trim(link[i+len("/s/"):], "/")
	}
	if token == "" {
		return fmt.Errorf("invalid link %q", link)
	}

	password, err := GetSecret(a.out, "Password (empty for none)")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	d, err := a.api.DownloadShare(ctx, token, string(password))
	if err != nil {
		return err
	}
	return a.save(d)
}

func (a *App) save(d *api.Download) error {
	defer d.Body.Close()

	if a.downloadDir == "" {
		dir, err := filex.EnsureSubDir(downloadsDir)
		if err != nil {
			return err
		}
		a.downloadDir = dir
	}

	f, err := filex.CreateUnique(a.downloadDir, d.Name)
	if err != nil {
		return err
	}

	n, err := io.Copy(f, d.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return err
	}

	fmt.Fprintf(a.out, "Saved %s (%d bytes)\n", f.Name(), n)
	return nil
}
