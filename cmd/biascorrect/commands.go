package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/lox/biascorrect/internal/api"
	"github.com/lox/biascorrect/internal/dataset"
	"github.com/lox/biascorrect/internal/imagegen"
	"github.com/lox/biascorrect/internal/ingest"
	"github.com/lox/biascorrect/internal/models"
	"github.com/lox/biascorrect/internal/narrative"
	"github.com/lox/biascorrect/internal/pipeline"
	"github.com/lox/biascorrect/internal/store"
)

type ServeCmd struct {
	Port         string        `help:"HTTP server port." default:"8080" env:"PORT"`
	OpenAIAPIKey string        `name:"openai-api-key" help:"Enables model-written run summaries." env:"OPENAI_API_KEY"`
	OpenAIModel  string        `name:"openai-model" help:"Chat model for summaries." env:"OPENAI_MODEL"`
	CacheDir     string        `help:"Directory for cached heatmaps." default:"data/heatmaps" type:"path"`
	CacheMaxAge  time.Duration `help:"Maximum age of cached heatmaps." default:"24h"`
}

func (c *ServeCmd) Run(ctx context.Context, st *store.Store) error {
	server := api.NewServer(st, c.Port)
	server.SetHeatmapCache(imagegen.NewCache(c.CacheDir, c.CacheMaxAge))

	if sum, err := narrative.NewSummarizer(c.OpenAIAPIKey, c.OpenAIModel); err != nil {
		log.Printf("model summaries disabled: %v", err)
	} else {
		server.SetSummarizer(sum)
	}

	return server.Run(ctx)
}

type ImportCmd struct {
	Name string `help:"Dataset name (defaults to the file name)."`
	Kind string `help:"Dataset kind." enum:"observed,simulated" required:""`
	Path string `arg:"" help:"CSV file with date, temperature_min, temperature_max, precipitation columns." type:"existingfile"`
}

func (c *ImportCmd) Run(st *store.Store) error {
	result, err := ingest.NewImporter(st).ImportFile(c.Name, models.DatasetKind(c.Kind), c.Path)
	if err != nil {
		return err
	}
	printImport(result)
	return nil
}

type FetchCmd struct {
	FTPAddr     string `name:"ftp-addr" help:"FTP server host:port." env:"FTP_ADDR" required:""`
	FTPUser     string `name:"ftp-user" help:"FTP user (anonymous if empty)." env:"FTP_USER"`
	FTPPassword string `name:"ftp-password" help:"FTP password." env:"FTP_PASSWORD"`
	Name        string `help:"Dataset name (defaults to the file name)."`
	Kind        string `help:"Dataset kind." enum:"observed,simulated" default:"observed"`
	Path        string `arg:"" help:"Remote file path."`
}

func (c *FetchCmd) Run(ctx context.Context, st *store.Store) error {
	importer := ingest.NewImporter(st)
	importer.SetFTPSource(ingest.NewFTPSource(c.FTPAddr, c.FTPUser, c.FTPPassword))

	result, err := importer.ImportFTP(ctx, c.Name, models.DatasetKind(c.Kind), c.Path)
	if err != nil {
		return err
	}
	printImport(result)
	return nil
}

type CorrectCmd struct {
	Sim    string `help:"Simulated dataset name." required:""`
	Obs    string `help:"Observed dataset name." required:""`
	Start  string `help:"First date of the window (YYYY-MM-DD); defaults to the first simulated date."`
	End    string `help:"Last date of the window (YYYY-MM-DD); defaults to the last simulated date."`
	Export string `help:"Write corrected data to this CSV file." type:"path"`
	NoSave bool   `help:"Do not record the run."`
}

func (c *CorrectCmd) Run(ctx context.Context, st *store.Store) error {
	req := pipeline.Request{Simulated: c.Sim, Observed: c.Obs}
	var err error
	if c.Start != "" {
		if req.Window.Start, err = dataset.ParseDate(c.Start); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	}
	if c.End != "" {
		if req.Window.End, err = dataset.ParseDate(c.End); err != nil {
			return fmt.Errorf("end: %w", err)
		}
	}

	out, err := pipeline.NewRunner(st).Run(ctx, req, !c.NoSave)
	if err != nil {
		return err
	}

	fmt.Printf("%s vs %s, %s to %s\n\n", c.Sim, c.Obs,
		out.Run.WindowStart.Format("2006-01-02"), out.Run.WindowEnd.Format("2006-01-02"))
	printVariables(out.Run.Variables)
	fmt.Println()
	fmt.Println(narrative.Fallback(out.Run.Variables))

	if c.Export != "" {
		f, err := os.Create(c.Export)
		if err != nil {
			return err
		}
		if err := out.WriteCSV(f); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", c.Export, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		log.Printf("correct: wrote %s", c.Export)
	}
	return nil
}

type RunsCmd struct {
	Limit int `help:"Number of runs to show." default:"10"`
}

func (c *RunsCmd) Run(st *store.Store) error {
	runs, err := st.ListCorrectionRuns(c.Limit)
	if err != nil {
		return err
	}
	for _, run := range runs {
		fmt.Printf("#%d %s  %s vs %s  %s to %s\n", run.ID, run.CreatedAt.Format(time.RFC3339),
			run.SimDataset, run.ObsDataset,
			run.WindowStart.Format("2006-01-02"), run.WindowEnd.Format("2006-01-02"))
		printVariables(run.Variables)
		fmt.Println()
	}
	return nil
}

type DatasetsCmd struct{}

func (c *DatasetsCmd) Run(st *store.Store) error {
	datasets, err := st.ListDatasets()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tROWS\tFIRST\tLAST\tSOURCE")
	for _, d := range datasets {
		first, last := "-", "-"
		if d.FirstDate.Valid {
			first = d.FirstDate.Time.Format("2006-01-02")
		}
		if d.LastDate.Valid {
			last = d.LastDate.Time.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", d.Name, d.Kind, d.RowCount, first, last, d.Source)
	}
	return tw.Flush()
}

func printImport(r *ingest.ImportResult) {
	fmt.Printf("imported %s (%s): %d parsed, %d stored, %d flagged\n", r.Dataset, r.Kind, r.Parsed, r.Stored, r.Flagged)
	if r.RawFileID == 0 {
		fmt.Println("identical file content was imported before")
	}
}

func printVariables(vars []models.VariableRun) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIABLE\tN\tMEAN OBS\tMEAN SIM\tMEAN CORR\tRMSE SIM\tRMSE CORR\tBIAS SIM\tBIAS CORR")
	for _, v := range vars {
		p, m := v.Performance, v.Means
		fmt.Fprintf(tw, "%s (%s)\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			v.Variable, v.Variable.Units(), v.SampleSize,
			m.Observed, m.Simulated, m.Corrected, p.RMSESim, p.RMSECorr, p.BiasSim, p.BiasCorr)
	}
	tw.Flush()
}

type ImportsCmd struct {
	Limit int `help:"Number of failures to show." default:"20"`
}

func (c *ImportsCmd) Run(st *store.Store) error {
	failures, err := st.GetRecentImportErrors(c.Limit)
	if err != nil {
		return err
	}
	if len(failures) == 0 {
		fmt.Println("no failed imports")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDATASET\tSOURCE\tERROR")
	for _, run := range failures {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", run.ID, run.StartedAt.Format(time.RFC3339),
			run.Dataset, run.Source, run.ErrorMessage.String)
	}
	return tw.Flush()
}

type RawCmd struct {
	ID     int64  `arg:"" help:"Raw file ID."`
	Output string `short:"o" help:"Write to this file instead of stdout." type:"path"`
}

func (c *RawCmd) Run(st *store.Store) error {
	content, err := st.GetRawFile(c.ID)
	if err != nil {
		return fmt.Errorf("raw file %d: %w", c.ID, err)
	}
	if c.Output == "" {
		_, err = os.Stdout.Write(content)
		return err
	}
	return os.WriteFile(c.Output, content, 0644)
}

type PruneCmd struct {
	Days int `help:"Keep raw files imported within this many days." default:"365"`
}

func (c *PruneCmd) Run(st *store.Store) error {
	n, err := st.CleanupOldRawFiles(c.Days)
	if err != nil {
		return err
	}
	log.Printf("prune: deleted %d raw files older than %d days", n, c.Days)
	return nil
}
