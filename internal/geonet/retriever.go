package geonet

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/gmprocess-cli/internal/fetcher"
	"github.com/sells-group/gmprocess-cli/internal/model"
	"github.com/sells-group/gmprocess-cli/internal/resilience"
	"github.com/sells-group/gmprocess-cli/internal/waveform"
)

// ErrEventFolderNotFound is returned when the archive month has no folder
// for the event.
var ErrEventFolderNotFound = errors.New("geonet: event folder not found")

// RetrievalError reports an archive directory that could not be entered.
type RetrievalError struct {
	Path string
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("geonet: could not enter archive directory %q", e.Path)
}

// ArchiveURL returns the archive month URL for t.
func (f *Fetcher) ArchiveURL(t time.Time) string {
	t = t.UTC()
	r := strings.NewReplacer(
		"[YEAR]", strconv.Itoa(t.Year()),
		"[MONTH]", t.Format(monthFormat),
	)
	return r.Replace(f.opts.ArchiveURL)
}

// EventFolder returns the archive folder name for an event time.
func EventFolder(t time.Time) string {
	return t.UTC().Format(folderTimeFormat)
}

// RetrieveData downloads every record file for ev from the FTP archive and
// parses them into a collection, in download order.
//
// Files are kept under Options.RawDir when set. Otherwise they go to a
// scratch directory that is removed before RetrieveData returns.
func (f *Fetcher) RetrieveData(ctx context.Context, ev model.CandidateEvent) (coll *waveform.Collection, err error) {
	start := time.Now()
	defer func() {
		f.deps.Metrics.ObserveRetrieval(Name, time.Since(start), err)
	}()

	rawDir := f.opts.RawDir
	if rawDir == "" {
		scratch, mkErr := os.MkdirTemp("", "gmprocess-geonet-*")
		if mkErr != nil {
			return nil, eris.Wrap(mkErr, "geonet: create scratch dir")
		}
		defer func() {
			if rmErr := os.RemoveAll(scratch); rmErr != nil {
				zap.L().Warn("geonet: remove scratch dir", zap.String("dir", scratch), zap.Error(rmErr))
			}
		}()
		rawDir = scratch
	} else if mkErr := os.MkdirAll(rawDir, 0o755); mkErr != nil {
		return nil, eris.Wrapf(mkErr, "geonet: create raw dir %s", rawDir)
	}

	files, err := f.download(ctx, ev, rawDir)
	if err != nil {
		f.deps.Metrics.RetrievalError(Name, "download")
		return nil, err
	}

	traces, err := f.parse(ctx, files)
	if err != nil {
		f.deps.Metrics.RetrievalError(Name, "parse")
		return nil, err
	}
	f.deps.Metrics.AddTraces(Name, len(traces))

	zap.L().Info("geonet: retrieved data",
		zap.String("event", EventFolder(ev.Time)),
		zap.Int("files", len(files)),
		zap.Int("traces", len(traces)),
	)
	return waveform.NewCollection(traces), nil
}

// download walks the archive for ev and returns the local paths written.
func (f *Fetcher) download(ctx context.Context, ev model.CandidateEvent, rawDir string) ([]string, error) {
	monthURL := f.ArchiveURL(ev.Time)
	u, err := url.Parse(monthURL)
	if err != nil {
		return nil, eris.Wrapf(err, "geonet: parse archive url %s", monthURL)
	}

	retry := f.opts.Retry
	retry.OnRetry = resilience.RetryLogger(Name, "archive connect")
	sess, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (fetcher.FTPSession, error) {
		return f.deps.FTP.Dial(ctx, monthURL)
	})
	if err != nil {
		return nil, eris.Wrap(err, "geonet: connect to archive")
	}
	defer func() {
		if qErr := sess.Quit(); qErr != nil {
			zap.L().Debug("geonet: ftp quit", zap.Error(qErr))
		}
	}()

	if err := enterPath(sess, u.Path); err != nil {
		return nil, err
	}

	folder := EventFolder(ev.Time)
	ok, err := sess.ChangeDir(folder)
	if err != nil {
		return nil, eris.Wrapf(err, "geonet: enter event folder %s", folder)
	}
	if !ok {
		folderURL := strings.TrimSuffix(monthURL, "/") + "/" + folder
		return nil, eris.Wrapf(ErrEventFolderNotFound, "could not find an FTP data folder called %q", folderURL)
	}

	entries, err := sess.NameList("")
	if err != nil {
		return nil, eris.Wrapf(err, "geonet: list event folder %s", folder)
	}

	var files []string
	seen := make(map[string]bool)
	for _, entry := range entries {
		name := path.Base(entry)
		if !strings.HasPrefix(name, f.opts.VolumePrefix) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "geonet: download cancelled")
		}
		got, err := f.downloadVolume(sess, name, rawDir, seen)
		if err != nil {
			return nil, err
		}
		files = append(files, got...)
	}
	return files, nil
}

// enterPath changes into each segment of p from the root.
func enterPath(sess fetcher.FTPSession, p string) error {
	dirs := []string{"/"}
	for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
		if seg != "" {
			dirs = append(dirs, seg)
		}
	}
	for _, dir := range dirs {
		ok, err := sess.ChangeDir(dir)
		if err != nil {
			return eris.Wrapf(err, "geonet: enter %s", p)
		}
		if !ok {
			return &RetrievalError{Path: p}
		}
	}
	return nil
}

// downloadVolume fetches the record files of one volume directory. It
// leaves the session in the event folder.
func (f *Fetcher) downloadVolume(sess fetcher.FTPSession, volume, rawDir string, seen map[string]bool) ([]string, error) {
	log := zap.L().With(zap.String("volume", volume))

	ok, err := sess.ChangeDir(volume)
	if err != nil {
		return nil, eris.Wrapf(err, "geonet: enter volume %s", volume)
	}
	if !ok {
		log.Debug("geonet: volume entry is not a directory")
		return nil, nil
	}

	entries, err := sess.NameList("")
	if err != nil {
		return nil, eris.Wrapf(err, "geonet: list volume %s", volume)
	}
	if !containsName(entries, f.opts.DataDir) {
		log.Debug("geonet: volume has no data directory")
		return nil, leave(sess, 1)
	}

	ok, err = sess.ChangeDir(f.opts.DataDir)
	if err != nil {
		return nil, eris.Wrapf(err, "geonet: enter %s/%s", volume, f.opts.DataDir)
	}
	if !ok {
		return nil, leave(sess, 1)
	}

	names, err := sess.NameList("")
	if err != nil {
		return nil, eris.Wrapf(err, "geonet: list %s/%s", volume, f.opts.DataDir)
	}

	var files []string
	for _, entry := range names {
		name := path.Base(entry)
		if !hasExtension(name, f.opts.Extension) {
			continue
		}
		local := filepath.Join(rawDir, name)
		if seen[local] {
			continue
		}
		seen[local] = true

		n, err := retrieveFile(sess, name, local)
		if err != nil {
			return nil, err
		}
		f.deps.Metrics.AddDownload(Name, n)
		log.Debug("geonet: downloaded", zap.String("file", name), zap.Int64("bytes", n))
		files = append(files, local)
	}

	return files, leave(sess, 2)
}

func retrieveFile(sess fetcher.FTPSession, name, local string) (int64, error) {
	out, err := os.Create(local)
	if err != nil {
		return 0, eris.Wrapf(err, "geonet: create %s", local)
	}
	n, err := sess.Retrieve(name, out)
	closeErr := out.Close()
	if err != nil {
		return n, eris.Wrapf(err, "geonet: download %s", name)
	}
	if closeErr != nil {
		return n, eris.Wrapf(closeErr, "geonet: close %s", local)
	}
	return n, nil
}

func leave(sess fetcher.FTPSession, levels int) error {
	for range levels {
		ok, err := sess.ChangeDir("..")
		if err != nil {
			return eris.Wrap(err, "geonet: leave directory")
		}
		if !ok {
			return eris.New("geonet: leave directory: parent unavailable")
		}
	}
	return nil
}

func containsName(entries []string, name string) bool {
	for _, e := range entries {
		if path.Base(e) == name {
			return true
		}
	}
	return false
}

// parse reads files with the configured reader. Traces keep file order.
func (f *Fetcher) parse(ctx context.Context, files []string) ([]waveform.Trace, error) {
	perFile := make([][]waveform.Trace, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.ParseWorkers)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			traces, err := f.deps.Reader.Read(file)
			if err != nil {
				return eris.Wrapf(err, "geonet: parse %s", filepath.Base(file))
			}
			perFile[i] = traces
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var traces []waveform.Trace
	for _, ts := range perFile {
		traces = append(traces, ts...)
	}
	return traces, nil
}

// hasExtension reports whether name ends with ext, ignoring case. No dot is
// required before ext.
func hasExtension(name, ext string) bool {
	return strings.HasSuffix(strings.ToUpper(name), strings.ToUpper(ext))
}
