package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/interchange"
	"fintrack/internal/ledger"
	"fintrack/internal/mail"
	"fintrack/internal/state"
	"fintrack/internal/syncer"
)

func newNormalizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <amount>...",
		Short: "Show how amounts typed in either decimal format are read",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INPUT\tDISPLAY\tVALUE\tFORMATTED")
			for _, in := range args {
				display, value := core.NormalizeAmount(in)
				fmt.Fprintf(w, "%s\t%s\t%g\t%s\n", in, display, value, core.FormatAmount(value))
			}
			return w.Flush()
		},
	}
}

type report struct {
	Totals   ledger.Totals       `json:"totals"`
	Balances map[string]float64  `json:"balances"`
	Overall  float64             `json:"overallBalance"`
	Budget   ledger.BudgetReport `json:"budget"`
	Goals    []ledger.GoalStatus `json:"goals,omitempty"`
}

func buildReport(st state.State, month string, accounts core.Accounts, buckets ledger.Buckets) report {
	if month == "" {
		month = st.Month
	}
	balances := ledger.Balances(st.Records)
	r := report{
		Totals:   ledger.MonthlyTotals(st.Records, month, accounts),
		Balances: balances,
		Overall:  ledger.OverallBalance(balances, accounts),
		Budget:   ledger.BudgetUsage(st.Records, month, st.Budget, buckets),
	}
	for _, g := range st.Goals {
		r.Goals = append(r.Goals, ledger.GoalProgress(g))
	}
	return r
}

func newReportCmd(a *app) *cobra.Command {
	var (
		namespace string
		month     string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the monthly totals, balances and budget usage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if month != "" {
				if err := core.ValidateMonth(month); err != nil {
					return err
				}
			}
			store, err := a.open(cmd.Context(), namespace)
			if err != nil {
				return err
			}
			r := buildReport(store.Snapshot(), month, store.Accounts(), a.cfg.Buckets())
			if asJSON {
				return writeJSON(a, r)
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Month\t%s\n", r.Totals.Month)
			fmt.Fprintf(w, "Income\t%s\n", core.FormatAmount(r.Totals.Income))
			fmt.Fprintf(w, "Expense\t%s\n", core.FormatAmount(r.Totals.Expense))
			fmt.Fprintf(w, "Savings\t%s\n", core.FormatAmount(r.Totals.Savings))
			fmt.Fprintf(w, "Net\t%s\n\n", core.FormatAmount(r.Totals.Net))

			names := make([]string, 0, len(r.Balances))
			for name := range r.Balances {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Fprintln(w, "ACCOUNT\tBALANCE")
			for _, name := range names {
				fmt.Fprintf(w, "%s\t%s\n", name, core.FormatAmount(r.Balances[name]))
			}
			fmt.Fprintf(w, "Overall\t%s\n\n", core.FormatAmount(r.Overall))

			fmt.Fprintln(w, "BUDGET\tSPENT\tLIMIT\tUSED")
			for _, row := range []struct {
				name string
				u    ledger.Usage
			}{
				{"Essentials", r.Budget.Essentials},
				{"Discretionary", r.Budget.Discretionary},
				{"Savings", r.Budget.Savings},
			} {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\n", row.name,
					core.FormatAmount(row.u.Spent), core.FormatAmount(row.u.Limit), row.u.Percent)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", state.LocalNamespace, "State namespace to read")
	cmd.Flags().StringVarP(&month, "month", "m", "", "Reporting month (YYYY-MM), defaults to the active month")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var (
		namespace string
		txType    string
		sortKey   string
		asc       bool
		asJSON    bool
		q         ledger.Query
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records through the filter, sort and page pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if txType != "" && !strings.EqualFold(txType, "all") {
				t, err := core.ParseTxType(txType)
				if err != nil {
					return err
				}
				q.Type = t
			}
			switch ledger.SortKey(strings.ToLower(sortKey)) {
			case ledger.SortByDate:
				q.Sort = ledger.SortByDate
			case ledger.SortByAccount:
				q.Sort = ledger.SortByAccount
			default:
				return fmt.Errorf("unknown sort %q", sortKey)
			}
			if q.Account == ledger.AllAccounts {
				q.Account = ""
			}
			q.Desc = !asc

			store, err := a.open(cmd.Context(), namespace)
			if err != nil {
				return err
			}
			page := ledger.Run(store.Snapshot().Records, q)
			if asJSON {
				return writeJSON(a, page)
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tTIME\tTYPE\tACCOUNT\tAMOUNT\tCATEGORY\tSUBCATEGORY\tID")
			for _, tx := range page.Items {
				account := tx.Account
				if tx.ToAccount != "" {
					account += " -> " + tx.ToAccount
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					tx.Date, tx.Time, tx.Type, account, core.FormatAmount(tx.Amount),
					tx.Category, tx.Subcategory, tx.ID)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			a.printf("page %d/%d, %d records\n", page.Page, page.Pages, page.Total)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&namespace, "namespace", "n", state.LocalNamespace, "State namespace to read")
	f.StringVarP(&q.Search, "search", "q", "", "Search category, subcategory, account and note")
	f.StringVarP(&txType, "type", "t", "", "Income, Expense or Transfer")
	f.StringVarP(&q.Account, "account", "a", "", "Only this account")
	f.StringVar(&q.From, "from", "", "First date (YYYY-MM-DD)")
	f.StringVar(&q.To, "to", "", "Last date (YYYY-MM-DD)")
	f.StringVar(&sortKey, "sort", string(ledger.SortByDate), "date or account")
	f.BoolVar(&asc, "asc", false, "Ascending order")
	f.IntVarP(&q.Page, "page", "p", 1, "Page number")
	f.BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		namespace string
		format    string
		outPath   string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the state as JSON, YAML or CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := interchange.FormatFromPath(outPath)
			if format != "" {
				var err error
				if f, err = interchange.ParseFormat(format); err != nil {
					return err
				}
			}
			store, err := a.open(cmd.Context(), namespace)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := interchange.Export(&buf, store.Snapshot(), f); err != nil {
				return err
			}
			if outPath == "" || outPath == "-" {
				_, err = a.out.Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			a.printf("exported %s to %s\n", f, outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", state.LocalNamespace, "State namespace to read")
	cmd.Flags().StringVarP(&format, "format", "f", "", "json, yaml or csv (default from the file extension)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file, stdout when empty")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var (
		namespace string
		format    string
	)
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a JSON, YAML or CSV export into the state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := interchange.FormatFromPath(args[0])
			if format != "" {
				var err error
				if f, err = interchange.ParseFormat(format); err != nil {
					return err
				}
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import: %w", err)
			}
			store, err := a.open(cmd.Context(), namespace)
			if err != nil {
				return err
			}
			sum, err := interchange.Import(cmd.Context(), store, data, f)
			if err != nil {
				return err
			}
			a.printf("imported %d records, %d goals (tags: %t, budget: %t)\n",
				sum.Transactions, sum.Goals, sum.Tags, sum.Budget)
			return nil
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", state.LocalNamespace, "State namespace to write")
	cmd.Flags().StringVarP(&format, "format", "f", "", "json, yaml or csv (default from the file extension)")
	return cmd
}

var errNoRemote = errors.New("no remote store configured, set REMOTE_BACKEND")

func newSyncCmd(a *app) *cobra.Command {
	var (
		email    string
		password string
		mode     string
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push, pull or fully sync a user's state with the remote store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := syncer.ParseMode(mode)
			if err != nil {
				return err
			}
			if password == "" {
				password = os.Getenv("FINTRACK_PASSWORD")
			}
			ctx := cmd.Context()
			// Opening any store brings the backends up.
			if _, err := a.open(ctx, state.LocalNamespace); err != nil {
				return err
			}
			rem := a.backend.Remote
			if rem == nil {
				return errNoRemote
			}

			svc := auth.NewService(rem, mail.LogSender{Logger: a.logger}, auth.Config{
				Secret: []byte(a.cfg.JWTSecret),
			}, a.logger)
			tok, err := svc.Login(ctx, email, password)
			if err != nil {
				return err
			}

			store, err := a.open(ctx, tok.Session.UserID)
			if err != nil {
				return err
			}
			s := syncer.New(rem, a.logger)
			defer s.Close()
			res, err := s.Run(ctx, store, tok.Session.UserID, m)
			if err != nil {
				return err
			}
			a.printf("%s sync done: pushed %d, pulled %d, goals %d\n", res.Mode, res.Pushed, res.Pulled, res.Goals)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (default $FINTRACK_PASSWORD)")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(syncer.ModeFull), "push, pull or full")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func writeJSON(a *app, v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
