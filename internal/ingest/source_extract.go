package ingest

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"iter"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/gocolly/colly/v2"

	"github.com/shilohtd/grants-pipeline/internal/models"
)

const downloadProgressStep = 10 << 20 // log every 10 MiB

// GrantsGovExtractSource downloads the full grants.gov XML database extract.
// It scrapes the extract listing page for GrantsDBExtract*.zip links, picks
// the newest one, downloads and unpacks it, and parses every XML file inside
// with the same opportunity mapping the file-backed XML source uses.
type GrantsGovExtractSource struct {
	ScrapeConfig
}

func NewGrantsGovExtractSource(config map[string]any) *GrantsGovExtractSource {
	return &GrantsGovExtractSource{ScrapeConfig{Config: config}}
}

func (s *GrantsGovExtractSource) Name() string { return "grants.gov.extract" }

// DownloadDir is where archives and their unpacked contents live between
// runs. Defaults next to the working directory.
func (s *GrantsGovExtractSource) DownloadDir() string {
	return configValue(s.Config, "download_dir", "./downloads")
}

func (s *GrantsGovExtractSource) keepFiles() bool {
	return configValue(s.Config, "keep_downloaded_files", false)
}

func (s *GrantsGovExtractSource) Fetch(ctx context.Context, opts FetchOptions) iter.Seq2[models.Grant, error] {
	return func(yield func(models.Grant, error) bool) {
		archiveURL, err := s.discoverLatestArchive()
		if err != nil {
			yield(models.Grant{}, fatalf("discovering extract archive: %w", err))
			return
		}
		log.Printf("[grants.gov.extract] latest archive: %s", archiveURL)

		archivePath, err := s.download(ctx, archiveURL)
		if err != nil {
			yield(models.Grant{}, fatalf("downloading extract archive: %w", err))
			return
		}

		extractDir := strings.TrimSuffix(archivePath, ".zip")
		if !s.keepFiles() {
			defer s.cleanup(archivePath, extractDir)
		}

		if err := unzip(archivePath, extractDir); err != nil {
			yield(models.Grant{}, fatalf("extracting archive %s: %w", archivePath, err))
			return
		}

		xmlFiles, err := findXMLFiles(extractDir)
		if err != nil {
			yield(models.Grant{}, fatalf("scanning extracted files: %w", err))
			return
		}
		if len(xmlFiles) == 0 {
			yield(models.Grant{}, fatalf("archive %s contains no XML files", archivePath))
			return
		}

		for _, path := range xmlFiles {
			if ctx.Err() != nil {
				return
			}
			if !s.parseFile(ctx, path, opts, yield) {
				return
			}
		}
	}
}

// parseFile parses one extracted XML file and forwards its opportunities.
// Returns false when the consumer stopped the sequence.
func (s *GrantsGovExtractSource) parseFile(ctx context.Context, path string, opts FetchOptions, yield func(models.Grant, error) bool) bool {
	f, err := os.Open(path)
	if err != nil {
		// One unreadable member should not lose the rest of the archive.
		return yield(models.Grant{}, fmt.Errorf("error processing extracted file %s: %w", filepath.Base(path), err))
	}
	defer f.Close()

	doc, err := xmlquery.Parse(f)
	if err != nil {
		return yield(models.Grant{}, fmt.Errorf("error processing extracted file %s: %w", filepath.Base(path), err))
	}

	log.Printf("[grants.gov.extract] parsing %s", filepath.Base(path))
	stopped := false
	yieldOpportunities(ctx, doc, s.Name(), opts, func(g models.Grant, err error) bool {
		if !yield(g, err) {
			stopped = true
			return false
		}
		return true
	})
	return !stopped
}

// discoverLatestArchive scrapes the listing page and returns the URL of the
// lexicographically greatest GrantsDBExtract*.zip link. The extract names
// embed the date (GrantsDBExtractYYYYMMDD.zip), so greatest means newest.
func (s *GrantsGovExtractSource) discoverLatestArchive() (string, error) {
	var latestName, latestURL string

	c := colly.NewCollector()
	c.SetRequestTimeout(30 * time.Second)

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		name := filepath.Base(href)
		if !strings.HasPrefix(name, "GrantsDBExtract") || !strings.HasSuffix(name, ".zip") {
			return
		}
		if name > latestName {
			latestName = name
			latestURL = e.Request.AbsoluteURL(href)
		}
	})

	var visitErr error
	c.OnError(func(_ *colly.Response, err error) { visitErr = err })

	if err := c.Visit(s.BaseURL()); err != nil {
		return "", err
	}
	c.Wait()

	if visitErr != nil {
		return "", visitErr
	}
	if latestURL == "" {
		return "", fmt.Errorf("no GrantsDBExtract archives found at %s", s.BaseURL())
	}
	return latestURL, nil
}

// download fetches the archive into DownloadDir, skipping the transfer when
// the file is already present from a previous run. A failed transfer leaves
// no partial file behind.
func (s *GrantsGovExtractSource) download(ctx context.Context, url string) (string, error) {
	if err := os.MkdirAll(s.DownloadDir(), 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(s.DownloadDir(), filepath.Base(url))

	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		log.Printf("[grants.gov.extract] archive already downloaded: %s", dest)
		return dest, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	client := &http.Client{Timeout: 30 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s downloading %s", resp.Status, url)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}

	log.Printf("[grants.gov.extract] downloading %s (%d bytes)", url, resp.ContentLength)
	written, err := io.Copy(out, progressReader{resp.Body, new(int64)})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return "", err
	}
	log.Printf("[grants.gov.extract] downloaded %d bytes to %s", written, dest)
	return dest, nil
}

func (s *GrantsGovExtractSource) cleanup(archivePath, extractDir string) {
	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		log.Printf("[grants.gov.extract] cleanup: %v", err)
	}
	if err := os.RemoveAll(extractDir); err != nil {
		log.Printf("[grants.gov.extract] cleanup: %v", err)
	}
}

// progressReader logs transfer progress at fixed byte intervals.
type progressReader struct {
	r     io.Reader
	total *int64
}

func (p progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	before := *p.total
	*p.total += int64(n)
	if before/downloadProgressStep != *p.total/downloadProgressStep {
		log.Printf("[grants.gov.extract] downloaded %d MiB...", *p.total>>20)
	}
	return n, err
}

// unzip unpacks an archive into dir, refusing entries that escape it.
func unzip(archivePath, dir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer zr.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, member := range zr.File {
		dest := filepath.Join(dir, member.Name)
		if !strings.HasPrefix(dest, filepath.Clean(dir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive member escapes extraction dir: %s", member.Name)
		}
		if member.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := extractMember(member, dest); err != nil {
			return err
		}
	}
	return nil
}

func extractMember(member *zip.File, dest string) error {
	in, err := member.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// findXMLFiles walks dir and returns every .xml file, sorted by path.
func findXMLFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(path), ".xml") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
