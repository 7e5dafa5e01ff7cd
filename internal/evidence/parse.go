package evidence

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kapeview/kapeview/internal/journal"
	"github.com/kapeview/kapeview/internal/metrics"
	"github.com/kapeview/kapeview/internal/model"
)

// Parser output files inside parsed/<id>/.
const (
	mftCSV          = "mft.csv"
	mftListingCSV   = "mft_FileListing.csv"
	amcacheCSV      = "amcache.csv"
	amcacheFocusCSV = "amcache_UnassociatedFileEntries.csv"
	securityCSV     = "security.csv"
)

// Summary keys written by the parse stage.
const (
	SummaryMFTRows        = "mft_rows"
	SummaryAmcacheRows    = "amcache_rows"
	SummarySecurityRows   = "security_events_rows_db"
	SummaryMFTFileListing = "mft_filelisting"
	SummaryAmcacheCSVs    = "amcache_csvs"

	maxImageLogTail = 2000
)

// SummaryRowsKey is the summary key holding the imported row count of ds.
func SummaryRowsKey(ds model.Dataset) string {
	switch ds {
	case model.DatasetMFT:
		return SummaryMFTRows
	case model.DatasetAmcache:
		return SummaryAmcacheRows
	case model.DatasetSecurity:
		return SummarySecurityRows
	}
	return string(ds) + "_rows"
}

type parserJob struct {
	kind    string
	input   string
	csvName string
	ok      bool
}

// Parse runs the parser image over the artifacts of an extracted evidence,
// loads the CSV outputs into the store and records row counts in the
// summary. The evidence is DONE when at least one artifact was parsed.
func (w *Workspace) Parse(ctx context.Context, id string) (*model.ParseResult, error) {
	ev, err := w.evidence(ctx, id)
	if err != nil {
		return nil, err
	}
	extracted := ev.ExtractedDir
	if extracted == "" {
		extracted = w.extractedDir(id)
	}
	if info, err := os.Stat(extracted); err != nil || !info.IsDir() {
		return nil, ErrNotExtracted
	}

	unlock := w.lock(id)
	defer unlock()
	start := w.now()

	outDir := w.parsedDir(id)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("evidence: create parsed dir: %w", err)
	}
	jr, err := w.openJournal(id)
	if err != nil {
		return nil, err
	}
	defer jr.Close()
	since := jr.Append("parse", "parse started")

	ev.ParseStatus = model.StatusRunning
	ev.ParseMessage = "parsing"
	if err := w.store.UpdateEvidence(ctx, ev); err != nil {
		return nil, err
	}

	fail := func(msg, tail string) (*model.ParseResult, error) {
		jr.Append("parse", msg)
		ev.ParseStatus = model.StatusFailed
		ev.ParseMessage = msg
		if err := w.store.UpdateEvidence(ctx, ev); err != nil {
			log.Printf("evidence: record parse failure of %s: %v", id, err)
		}
		metrics.StageRunsTotal.WithLabelValues("parse", metrics.StatusFailure).Inc()
		log.Printf("evidence: parse %s failed: %s", id, msg)
		return &model.ParseResult{OK: false, Status: ev.ParseStatus, Error: msg, LogTail: tail},
			fmt.Errorf("evidence: parse %s: %s", id, msg)
	}

	if _, err := w.runner.LookPath("docker"); err != nil {
		return fail("docker CLI not found", "")
	}
	if out, code, err := w.runner.Run(ctx, "docker", "image", "inspect", w.parser.Image); err != nil || code != 0 {
		jr.Append("parse", strings.TrimSpace(out))
		return fail(fmt.Sprintf("parser image '%s' not found", w.parser.Image), lastChars(out, maxImageLogTail))
	}

	found := FindArtifacts(extracted)
	var jobs []*parserJob
	for _, j := range []struct{ kind, path, csv, missing string }{
		{KindMFT, found.MFT, mftCSV, "! $MFT not found under extracted path"},
		{KindAmcache, found.Amcache, amcacheCSV, "! Amcache.hve not found under extracted path"},
		{KindSecurity, found.Security, securityCSV, "! Security.evtx not found under extracted path"},
	} {
		if j.path == "" {
			jr.Append("parse", j.missing)
			continue
		}
		jobs = append(jobs, &parserJob{kind: j.kind, input: j.path, csvName: j.csv})
	}

	w.runParsers(ctx, jr, id, jobs)

	res, manifest := w.collectOutputs(ctx, jr, ev, jobs)
	manifest.StartedAt = start.UTC()
	manifest.FinishedAt = w.now().UTC()

	produced := ev.MFTCSVPath != "" || ev.AmcacheCSVPath != "" || ev.SecurityCSVPath != ""
	if produced {
		ev.ParseStatus = model.StatusDone
		ev.ParseMessage = "parsed"
	} else {
		ev.ParseStatus = model.StatusFailed
		ev.ParseMessage = "no artifact parsed"
		res.Error = ev.ParseMessage
		jr.Append("parse", "! no artifact parsed")
	}
	manifest.Status = ev.ParseStatus
	if err := WriteManifest(outDir, manifest); err != nil {
		log.Printf("evidence: %v", err)
	}
	if err := w.store.UpdateEvidence(ctx, ev); err != nil {
		return nil, err
	}

	tail, err := jr.Tail(journal.TailSize, since)
	if err != nil {
		log.Printf("evidence: read run log of %s: %v", id, err)
	}
	res.OK = produced
	res.Status = ev.ParseStatus
	res.LogTail = journal.Format(tail)
	res.Summary = ev.Summary

	metrics.StageRunsTotal.WithLabelValues("parse", metrics.StatusLabel(produced)).Inc()
	metrics.StageDuration.WithLabelValues("parse").Observe(w.now().Sub(start).Seconds())
	log.Printf("evidence: parse %s finished: %s", id, ev.ParseStatus)
	return res, nil
}

// runParsers runs the parser container once per job, concurrently. A
// failing parser does not stop the others.
func (w *Workspace) runParsers(ctx context.Context, jr *runLog, id string, jobs []*parserJob) {
	rel := func(p string) string {
		r, err := filepath.Rel(w.root, p)
		if err != nil {
			return p
		}
		return r
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(artifactNames))
	for _, job := range jobs {
		g.Go(func() error {
			args := w.parser.RunArgs(job.kind, rel(job.input), filepath.Join(ParsedDir, id), job.csvName)
			out, code, err := w.runner.Run(gctx, "docker", args...)

			mu.Lock()
			defer mu.Unlock()
			entry := fmt.Sprintf("$ docker %s\n%s\n(rc=%d)", strings.Join(args, " "), strings.TrimSpace(out), code)
			if err != nil {
				entry = fmt.Sprintf("$ docker %s\n! %v", strings.Join(args, " "), err)
			}
			jr.Append("parse", entry)
			job.ok = err == nil && code == 0
			metrics.ParserRunsTotal.WithLabelValues(job.kind, metrics.StatusLabel(job.ok)).Inc()
			return nil
		})
	}
	_ = g.Wait()
}

// collectOutputs inspects the parser outputs, imports them into the store
// and fills in the evidence paths and summary.
func (w *Workspace) collectOutputs(ctx context.Context, jr *runLog, ev *model.EvidenceRow, jobs []*parserJob) (*model.ParseResult, *Manifest) {
	id := ev.ID
	dir := w.parsedDir(id)
	relOut := func(name string) string { return filepath.ToSlash(filepath.Join(ParsedDir, id, name)) }

	res := &model.ParseResult{}
	m := &Manifest{
		EvidenceID:   id,
		CaseID:       ev.CaseID,
		OriginalName: ev.OriginalName,
		SHA256:       ev.SHA256,
		ParserImage:  w.parser.Image,
		Inputs:       map[string]string{},
		Outputs:      map[string]string{},
		Rows:         map[string]int64{},
	}
	summary := model.Summary{}
	for k, v := range ev.Summary {
		summary[k] = v
	}

	importCSV := func(ds model.Dataset, rel string) {
		rows, err := ReadCSV(w.abs(rel), ds)
		if err != nil {
			jr.Appendf("parse", "! read %s: %v", rel, err)
			if len(rows) == 0 {
				return
			}
		}
		n, err := w.store.ReplaceRecords(ctx, id, ds, rows)
		if err != nil {
			jr.Appendf("parse", "! import %s: %v", ds, err)
			return
		}
		summary[SummaryRowsKey(ds)] = n
		m.Rows[string(ds)] = n
		metrics.RecordsImportedTotal.WithLabelValues(string(ds)).Add(float64(n))
		jr.Appendf("parse", "imported %d %s rows", n, ds)
	}

	for _, job := range jobs {
		if r, err := filepath.Rel(w.root, job.input); err == nil {
			m.Inputs[job.kind] = filepath.ToSlash(r)
		}
		switch job.kind {
		case KindMFT:
			if job.ok && nonEmptyFile(filepath.Join(dir, mftCSV)) {
				ev.MFTCSVPath = relOut(mftCSV)
				res.MFTCSV = MediaLink(ev.MFTCSVPath)
				m.Outputs["mft_csv"] = ev.MFTCSVPath
				importCSV(model.DatasetMFT, ev.MFTCSVPath)
			}
			if nonEmptyFile(filepath.Join(dir, mftListingCSV)) {
				summary[SummaryMFTFileListing] = relOut(mftListingCSV)
				res.MFTFileListing = MediaLink(relOut(mftListingCSV))
				m.Outputs["mft_filelisting"] = relOut(mftListingCSV)
			}

		case KindAmcache:
			focus := ""
			if nonEmptyFile(filepath.Join(dir, amcacheFocusCSV)) {
				focus = relOut(amcacheFocusCSV)
			} else {
				all := amcacheOutputs(dir)
				if len(all) == 0 {
					jr.Append("parse", "! Amcache parsed but no amcache*.csv found")
				}
				var links []string
				for _, name := range all {
					links = append(links, MediaLink(relOut(name)))
				}
				if len(all) > 0 {
					focus = relOut(all[0])
					res.AmcacheAll = links
					rels := make([]string, len(all))
					for i, name := range all {
						rels[i] = relOut(name)
					}
					summary[SummaryAmcacheCSVs] = rels
				}
			}
			if focus != "" {
				ev.AmcacheCSVPath = focus
				res.AmcacheCSV = MediaLink(focus)
				m.Outputs["amcache_csv"] = focus
				importCSV(model.DatasetAmcache, focus)
			}

		case KindSecurity:
			if job.ok && nonEmptyFile(filepath.Join(dir, securityCSV)) {
				ev.SecurityCSVPath = relOut(securityCSV)
				res.SecurityCSV = MediaLink(ev.SecurityCSVPath)
				m.Outputs["security_csv"] = ev.SecurityCSVPath
				importCSV(model.DatasetSecurity, ev.SecurityCSVPath)
			}
		}
	}

	ev.Summary = summary
	return res, m
}

// amcacheOutputs lists the non-empty amcache*.csv files of dir by name.
func amcacheOutputs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "amcache") && strings.HasSuffix(lower, ".csv") && nonEmptyFile(filepath.Join(dir, name)) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func lastChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
