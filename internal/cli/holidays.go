package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/digiurban/lifecycle/internal/calendar"
)

const dateLayout = "2006-01-02"

// HolidaysCmd returns the holidays command
func HolidaysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holidays",
		Short: "Inspect the business-day calendar",
		Long: `Inspect the business-day calendar used for SLA deadlines. The holiday file
comes from calendar.holidays_file in the configuration unless --file is given.`,
	}

	cmd.PersistentFlags().String("file", "", "holiday file overriding the configured one")

	cmd.AddCommand(holidaysListCmd())
	cmd.AddCommand(holidaysCheckCmd())
	cmd.AddCommand(holidaysDueCmd())

	return cmd
}

// openCalendar resolves the calendar and its location from flags and config.
func openCalendar(cmd *cobra.Command) (calendar.Calendar, *time.Location, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	path := cfg.Calendar.HolidaysFile
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		path = file
	}
	loc := cfg.Location()
	cal, err := calendar.Open(path, loc)
	if err != nil {
		return nil, nil, err
	}
	return cal, loc, nil
}

func holidaysListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the holidays of a year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cal, loc, err := openCalendar(cmd)
			if err != nil {
				return err
			}
			year, _ := cmd.Flags().GetInt("year")
			if year == 0 {
				year = time.Now().In(loc).Year()
			}

			out := cmd.OutOrStdout()
			h, ok := cal.(*calendar.Holidays)
			if !ok {
				fmt.Fprintln(out, "No holiday file configured, only weekends are non-business days.")
				return nil
			}

			days := h.InYear(year)
			headColor.Fprintf(out, "Holidays in %d (%d)\n", year, len(days))
			for _, d := range days {
				t, _ := time.ParseInLocation(dateLayout, d.Date, loc)
				fmt.Fprintf(out, "  %s  %-9s %s\n", d.Date, t.Weekday(), d.Name)
			}
			return nil
		},
	}

	cmd.Flags().Int("year", 0, "calendar year (default current year)")

	return cmd
}

func holidaysCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "check <date>",
		Short:   "Tell whether a date is a business day",
		Example: `  lifecyclectl holidays check 2025-04-21`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cal, loc, err := openCalendar(cmd)
			if err != nil {
				return err
			}
			t, err := parseDate(args[0], loc)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cal.IsBusinessDay(t) {
				fmt.Fprintf(out, "%s %s (%s) is a business day\n", checkMark(true), args[0], t.Weekday())
				return nil
			}
			reason := t.Weekday().String()
			if h, ok := cal.(*calendar.Holidays); ok {
				if name, isHoliday := h.HolidayName(t); isHoliday {
					reason = name
				}
			}
			fmt.Fprintf(out, "%s %s is not a business day (%s)\n", checkMark(false), args[0], reason)
			return nil
		},
	}
}

func holidaysDueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "due <start-date> <working-days>",
		Short: "Compute the deadline a number of working days after a date",
		Long: `Compute the deadline the SLA tracker would set for a protocol opened on
start-date with the given number of working days.`,
		Example: `  lifecyclectl holidays due 2025-03-03 10`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cal, loc, err := openCalendar(cmd)
			if err != nil {
				return err
			}
			start, err := parseDate(args[0], loc)
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("working days must be a positive integer, got %q", args[1])
			}

			due, err := calendar.AddBusinessDays(cal, start, n)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s), %d calendar days after %s\n",
				due.Format(dateLayout), due.Weekday(), calendar.CalendarDays(start, due), args[0])
			return nil
		},
	}
}

// parseDate reads a YYYY-MM-DD date as noon in loc, away from any DST edge.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t.Add(12 * time.Hour), nil
}
