package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"montero/internal/domain/params"
	"montero/internal/domain/pila"
)

type calcFlags struct {
	salary     int64
	riskClass  string
	cotizante  string
	integral   bool
	exonerated bool
	days       int
	applyCCF   bool
	year       int
	policy     string
	format     string
	out        string
}

func newPilaCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pila",
		Short: "PILA contribution calculations",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newPilaCalcCommand(opts))
	return cmd
}

func newPilaCalcCommand(opts *options) *cobra.Command {
	f := &calcFlags{}
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Calculate the monthly contributions for one salary",
		Example: `  montero pila calc --salary 2000000 --risk-class I
  montero pila calc --salary 5000000 --cotizante independiente --format json
  montero pila calc --salary 2000000 --risk-class III --format pdf --out liquidacion.pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			registry, err := params.NewRegistry(cfg.FiscalYear, params.Builtin()...)
			if err != nil {
				return err
			}
			year := f.year
			if year == 0 {
				year = registry.DefaultYear()
			}
			p, err := registry.Get(year)
			if err != nil {
				return err
			}
			if f.policy != "" {
				policy := params.ParafiscalPolicy(strings.ToLower(f.policy))
				if !policy.Valid() {
					return fmt.Errorf("policy must be %q or %q", params.PolicyThreshold, params.PolicyCCFAlways)
				}
				p = p.WithPolicy(policy)
			}

			in := pila.PayrollInput{
				Salary:             f.salary,
				CotizanteType:      pila.CotizanteType(strings.ToUpper(f.cotizante)),
				IsIntegralSalary:   f.integral,
				EmployerExonerated: f.exonerated,
				DaysWorked:         f.days,
				ApplyCCF:           f.applyCCF,
			}
			if f.riskClass != "" {
				rc, err := params.ParseRiskClass(f.riskClass)
				if err != nil {
					return err
				}
				in.RiskClass = rc
			}

			res, err := pila.Calculate(in, p)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch f.format {
			case "text":
				return pila.RenderText(out, res)
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			case "pdf":
				if f.out == "" {
					return fmt.Errorf("--out is required for pdf output")
				}
				doc, err := pila.RenderPDF(res)
				if err != nil {
					return err
				}
				if err := os.WriteFile(f.out, doc, 0o600); err != nil {
					return err
				}
				fmt.Fprintf(out, "report written to %s\n", f.out)
				return nil
			default:
				return fmt.Errorf("unknown format %q", f.format)
			}
		},
	}
	cmd.Flags().Int64Var(&f.salary, "salary", 0, "monthly salary in pesos")
	cmd.Flags().StringVar(&f.riskClass, "risk-class", "", "ARL risk class I-V (dependents)")
	cmd.Flags().StringVar(&f.cotizante, "cotizante", string(pila.Dependiente), "DEPENDIENTE or INDEPENDIENTE")
	cmd.Flags().BoolVar(&f.integral, "integral", false, "integral salary")
	cmd.Flags().BoolVar(&f.exonerated, "exonerated", false, "employer health exoneration")
	cmd.Flags().IntVar(&f.days, "days", 30, "days worked in the period")
	cmd.Flags().BoolVar(&f.applyCCF, "ccf", false, "independent contributor opts into CCF")
	cmd.Flags().IntVar(&f.year, "year", 0, "fiscal year (default from config)")
	cmd.Flags().StringVar(&f.policy, "policy", "", "parafiscal policy: threshold or ccf_always")
	cmd.Flags().StringVarP(&f.format, "format", "f", "text", "text, json or pdf")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output file for pdf")
	_ = cmd.MarkFlagRequired("salary")
	return cmd
}

func newParamsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Fiscal parameter bundles",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the stored fiscal years",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			conn, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			store := params.NewStore(conn)
			if cfg.RunSeed {
				if _, err := store.Seed(cmd.Context(), params.Builtin()...); err != nil {
					return err
				}
			}
			bundles, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "YEAR\tSMMLV\tIBC MAX\tPARAFISCAL THRESHOLD\tPOLICY\tDEFAULT")
			for _, b := range bundles {
				marker := ""
				if b.Year == cfg.FiscalYear {
					marker = "*"
				}
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\t%s\n", b.Year, b.SMMLV, b.IBCMax(), b.ParafiscalThreshold(), b.ParafiscalPolicy, marker)
			}
			return tw.Flush()
		},
	})
	return cmd
}
