package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehr/desk/internal/domain/documents"
	"github.com/ehr/desk/internal/domain/identity"
	"github.com/ehr/desk/internal/domain/patient"
	"github.com/ehr/desk/internal/domain/sheet"
	"github.com/ehr/desk/internal/domain/visit"
	"github.com/ehr/desk/internal/platform/session"
	"github.com/ehr/desk/internal/platform/validation"
	"github.com/ehr/desk/pkg/calendar"
)

// passwordEnv lets scripts avoid putting the password on the command line.
const passwordEnv = "EHR_DESK_PASSWORD"

func password(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(passwordEnv)
}

// userError unwraps the text meant for the doctor, keeping the cause for
// logs.
func userError(err error, fallback string) error {
	if err == nil {
		return nil
	}
	return errors.New(validation.Message(err, fallback+": "+err.Error()))
}

func intArg(args []string, i int, name string) (int, error) {
	n, err := strconv.Atoi(args[i])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, args[i])
	}
	return n, nil
}

func authCmds(a *app) []*cobra.Command {
	var doctorNumber, pw string
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session cookie",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := identity.Form{Mode: identity.ModeLogin, DoctorNumber: doctorNumber, Password: password(pw)}
			if !f.Submit(cmd.Context(), a.svc.Identity) {
				return errors.New(f.Message)
			}
			return printJSON(cmd, map[string]any{"authenticated": true, "session_file": a.cfg.SessionFile})
		},
	}
	loginCmd.Flags().StringVar(&doctorNumber, "doctor-number", "", "doctor number")
	loginCmd.Flags().StringVar(&pw, "password", "", "password (or "+passwordEnv+")")

	var reg identity.Form
	var regPW string
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Create a doctor account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := reg
			f.Mode = identity.ModeRegister
			f.Password = password(regPW)
			f.Submit(cmd.Context(), a.svc.Identity)
			if f.Message != identity.MsgRegistered {
				return errors.New(f.Message)
			}
			return printJSON(cmd, map[string]string{"message": f.Message})
		},
	}
	registerCmd.Flags().StringVar(&reg.Name, "name", "", "full name")
	registerCmd.Flags().StringVar(&reg.Email, "email", "", "email address")
	registerCmd.Flags().StringVar(&reg.DoctorNumber, "doctor-number", "", "doctor number")
	registerCmd.Flags().StringVar(&regPW, "password", "", "password (or "+passwordEnv+")")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the cookie",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.Identity.Logout(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd, map[string]bool{"authenticated": false})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether the stored session is still valid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(a.cfg.APIBaseURL)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"authenticated":  a.svc.Identity.Probe(cmd.Context()),
				"session_stored": a.jar.Has(u, session.CookieName),
				"api":            a.cfg.APIBaseURL,
			})
		},
	}

	return []*cobra.Command{loginCmd, registerCmd, logoutCmd, statusCmd}
}

func patientCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Find, create and show patients",
	}

	var q patient.SearchQuery
	findCmd := &cobra.Command{
		Use:   "find",
		Short: "Verify a patient by insurance number and date of birth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.svc.Patients.Locate(cmd.Context(), q)
			if err != nil {
				return userError(err, patient.MsgSearchFailed)
			}
			return printJSON(cmd, res)
		},
	}
	findCmd.Flags().StringVar(&q.InsuranceNumber, "insurance", "", "insurance number")
	findCmd.Flags().StringVar(&q.BirthDate, "birth-date", "", "date of birth (YYYY-MM-DD)")

	var insurance, first, last, birth string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := patient.NewIntake(insurance)
			in.FirstName, in.LastName, in.BirthDate = first, last, birth
			p, err := in.Submit(cmd.Context(), a.svc.Patients)
			if err != nil {
				return errors.New(in.Error)
			}
			return printJSON(cmd, p)
		},
	}
	createCmd.Flags().StringVar(&insurance, "insurance", "", "insurance number")
	createCmd.Flags().StringVar(&first, "first-name", "", "first name")
	createCmd.Flags().StringVar(&last, "last-name", "", "last name")
	createCmd.Flags().StringVar(&birth, "birth-date", "", "date of birth (YYYY-MM-DD)")

	showCmd := &cobra.Command{
		Use:   "show <patient-id>",
		Short: "Show a patient header and visit ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := intArg(args, 0, "patient-id")
			if err != nil {
				return err
			}
			p, visits, err := a.svc.Patients.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			age := "N/A"
			if !p.BirthDate.IsZero() {
				age = strconv.Itoa(patient.Age(p.BirthDate, calendar.Today()))
			}
			return printJSON(cmd, map[string]any{
				"patient": p,
				"age":     age,
				"ledger":  visit.Ledger(visits),
			})
		},
	}

	cmd.AddCommand(findCmd, createCmd, showCmd)
	return cmd
}

func visitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visit",
		Short: "Manage visits",
	}

	var date string
	var nv visit.NewVisit
	createCmd := &cobra.Command{
		Use:   "create <patient-id>",
		Short: "Open a visit (defaults: today, general)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := intArg(args, 0, "patient-id")
			if err != nil {
				return err
			}
			v := nv
			if date != "" {
				if v.VisitDate, err = calendar.Parse(date); err != nil {
					return err
				}
			}
			created, err := a.svc.Visits.Create(cmd.Context(), id, v)
			if err != nil {
				return err
			}
			return printJSON(cmd, created)
		},
	}
	createCmd.Flags().StringVar(&date, "date", "", "visit date (YYYY-MM-DD, default today)")
	createCmd.Flags().StringVar(&nv.VisitType, "type", "", "visit type (default "+visit.DefaultType+")")
	createCmd.Flags().StringVar(&nv.ChiefComplaint, "complaint", "", "chief complaint")
	createCmd.Flags().StringVar(&nv.Notes, "notes", "", "notes")

	cmd.AddCommand(createCmd)
	return cmd
}

// parseAssignments turns key=value pairs into a map. The value may contain
// '='.
func parseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		out[k] = v
	}
	return out, nil
}

func sheetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheet",
		Short: "Examination sheets",
	}

	typesCmd := &cobra.Command{
		Use:   "types",
		Short: "List sheet types and their fields in navigation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd, sheet.Schemas())
		},
	}

	var visitID int
	showCmd := &cobra.Command{
		Use:   "show <type> <patient-id>",
		Short: "Show the latest entry for a patient (optionally for one visit)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := sheet.ParseType(args[0])
			if err != nil {
				return err
			}
			pid, err := intArg(args, 1, "patient-id")
			if err != nil {
				return err
			}
			ed, err := a.svc.Sheets.Editor(t, pid, visitID)
			if err != nil {
				return err
			}
			if err := ed.Open(cmd.Context()); err != nil {
				a.log.Warn().Err(err).Str("sheet_type", string(t)).Msg("sheet opened with load errors")
			}
			return printJSON(cmd, ed.View())
		},
	}
	showCmd.Flags().IntVar(&visitID, "visit", 0, "visit id")

	historyCmd := &cobra.Command{
		Use:   "history <type> <patient-id>",
		Short: "List saved entries, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := sheet.ParseType(args[0])
			if err != nil {
				return err
			}
			pid, err := intArg(args, 1, "patient-id")
			if err != nil {
				return err
			}
			entries, err := a.svc.Sheets.History(cmd.Context(), t, pid)
			if err != nil {
				return err
			}
			items := make([]sheet.HistoryItem, 0, len(entries))
			for _, e := range entries {
				items = append(items, sheet.HistoryItem{ID: e.ID, Label: sheet.HistoryLabel(e), EditReason: e.EditReason})
			}
			return printJSON(cmd, items)
		},
	}

	entryCmd := &cobra.Command{
		Use:   "entry <type> <entry-id>",
		Short: "Show one saved entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := sheet.ParseType(args[0])
			if err != nil {
				return err
			}
			id, err := intArg(args, 1, "entry-id")
			if err != nil {
				return err
			}
			e, err := a.svc.Sheets.Entry(cmd.Context(), t, id)
			if err != nil {
				return err
			}
			return printJSON(cmd, e)
		},
	}

	var sets []string
	var fresh bool
	saveCmd := &cobra.Command{
		Use:   "save <type> <patient-id> <visit-id>",
		Short: "Edit the visit's latest entry (or a new one) and append it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := sheet.ParseType(args[0])
			if err != nil {
				return err
			}
			pid, err := intArg(args, 1, "patient-id")
			if err != nil {
				return err
			}
			vid, err := intArg(args, 2, "visit-id")
			if err != nil {
				return err
			}
			fields, err := parseAssignments(sets)
			if err != nil {
				return err
			}

			ed, err := a.svc.Sheets.Editor(t, pid, vid)
			if err != nil {
				return err
			}
			visits, err := a.svc.Visits.ListByPatient(cmd.Context(), pid)
			if err != nil {
				a.log.Warn().Err(err).Int("patient_id", pid).Msg("visit date unknown; saving under today")
			} else if v := visit.Find(visits, vid); v != nil {
				ed.SetVisitDate(v.VisitDate)
			} else {
				return fmt.Errorf("patient %d has no visit %d", pid, vid)
			}
			// A failed half of the load leaves that part empty; editing goes on.
			if err := ed.Open(cmd.Context()); err != nil {
				a.log.Warn().Err(err).Str("sheet_type", string(t)).Msg("sheet opened with load errors")
			}
			if fresh {
				ed.NewEntry()
			}
			for k, v := range fields {
				if err := ed.SetField(k, v); err != nil {
					return err
				}
			}
			if _, err := ed.Save(cmd.Context()); err != nil {
				return userError(err, sheet.MsgSaveFailed)
			}
			return printJSON(cmd, ed.View())
		},
	}
	saveCmd.Flags().StringArrayVar(&sets, "set", nil, "field value as key=value (repeatable)")
	saveCmd.Flags().BoolVar(&fresh, "new", false, "start from a blank entry instead of the latest")

	cmd.AddCommand(typesCmd, showCmd, historyCmd, entryCmd, saveCmd)
	return cmd
}

func docCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Visit documents",
	}

	listCmd := &cobra.Command{
		Use:   "list <visit-id>",
		Short: "List documents attached to a visit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vid, err := intArg(args, 0, "visit-id")
			if err != nil {
				return err
			}
			docs, err := a.svc.Documents.List(cmd.Context(), vid)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				return printJSON(cmd, map[string]string{"message": documents.MsgNoDocuments})
			}
			type row struct {
				*documents.Document
				Caption string `json:"caption"`
				ViewURL string `json:"view_url"`
			}
			rows := make([]row, 0, len(docs))
			for _, d := range docs {
				rows = append(rows, row{Document: d, Caption: documents.Caption(d), ViewURL: a.svc.Documents.ViewURL(d)})
			}
			return printJSON(cmd, rows)
		},
	}

	var description string
	uploadCmd := &cobra.Command{
		Use:   "upload <visit-id> <file>",
		Short: "Attach a file to a visit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vid, err := intArg(args, 0, "visit-id")
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			doc, err := a.svc.Documents.Upload(cmd.Context(), vid, documents.Upload{
				FileName:    filepath.Base(args[1]),
				Content:     f,
				Description: description,
			})
			if err != nil {
				return userError(err, documents.MsgUploadError)
			}
			return printJSON(cmd, map[string]any{"message": documents.MsgUploaded, "document": doc})
		},
	}
	uploadCmd.Flags().StringVar(&description, "description", "", "short description")

	var outPath string
	fetchCmd := &cobra.Command{
		Use:   "fetch <visit-id> <document-id>",
		Short: "Download a stored document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vid, err := intArg(args, 0, "visit-id")
			if err != nil {
				return err
			}
			did, err := intArg(args, 1, "document-id")
			if err != nil {
				return err
			}
			docs, err := a.svc.Documents.List(cmd.Context(), vid)
			if err != nil {
				return err
			}
			var doc *documents.Document
			for _, d := range docs {
				if d.ID == did {
					doc = d
				}
			}
			if doc == nil {
				return fmt.Errorf("visit %d has no document %d", vid, did)
			}
			if outPath == "" {
				outPath = doc.FileName
			}
			out, err := os.Create(outPath)
			if err != nil {
				return err
			}
			n, err := a.svc.Documents.Fetch(cmd.Context(), doc, out)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"file": outPath, "bytes": n})
		},
	}
	fetchCmd.Flags().StringVarP(&outPath, "out", "o", "", "output path (default: the stored file name)")

	cmd.AddCommand(listCmd, uploadCmd, fetchCmd)
	return cmd
}
