package reports

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"schoollib/internal/auth"
	"schoollib/internal/circulation"
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// summarizeLoans fills DaysOverdue and totals the rows.
func summarizeLoans(rows []LoanRow, now time.Time) LoansSummary {
	s := LoansSummary{TotalLoans: len(rows), StatusBreakdown: map[string]int{}}
	for i := range rows {
		if rows[i].Status == string(circulation.StatusOverdue) {
			rows[i].DaysOverdue = circulation.DaysOverdue(rows[i].DueAt, now)
		}
		s.TotalFines += rows[i].Fine
		s.StatusBreakdown[rows[i].Status]++
	}
	s.TotalFines = round2(s.TotalFines)
	return s
}

// Popularity is loans per copy. A book always counts as at least one copy.
func Popularity(totalLoans, totalCopies int) float64 {
	return float64(totalLoans) / float64(max(1, totalCopies))
}

// LoanRate is the percentage of copies currently lent out, to 2 dp.
func LoanRate(totalCopies, availableCopies int) float64 {
	return round2(float64(totalCopies-availableCopies) / float64(max(1, totalCopies)) * 100)
}

// summarizeBooks scores and sorts rows in place, most popular first.
func summarizeBooks(rows []BookRow) (BooksSummary, map[string]CategoryStat) {
	s := BooksSummary{TotalBooks: len(rows)}
	cats := map[string]CategoryStat{}
	for i := range rows {
		b := &rows[i]
		b.PopularityScore = Popularity(b.TotalLoans, b.TotalCopies)
		s.TotalCopies += b.TotalCopies
		s.AvailableCopies += b.AvailableCopies
		s.TotalHistoricalLoans += b.TotalLoans
		for _, c := range b.Categories {
			st := cats[c]
			st.Books++
			st.TotalLoans += b.TotalLoans
			cats[c] = st
		}
	}
	s.LoanRate = LoanRate(s.TotalCopies, s.AvailableCopies)

	slices.SortStableFunc(rows, func(a, b BookRow) int {
		return cmp.Compare(b.PopularityScore, a.PopularityScore)
	})
	return s, cats
}

func summarizeUsers(rows []UserRow) (UsersSummary, map[auth.Role]RoleStat) {
	s := UsersSummary{TotalUsers: len(rows)}
	roles := map[auth.Role]RoleStat{}
	for _, u := range rows {
		if u.Active {
			s.ActiveUsers++
		}
		s.TotalLoans += u.TotalLoans
		s.TotalFines += u.TotalFines
		st := roles[u.Role]
		st.Count++
		st.TotalLoans += u.TotalLoans
		roles[u.Role] = st
	}
	s.TotalFines = round2(s.TotalFines)
	s.AvgLoansPerUser = round2(float64(s.TotalLoans) / float64(max(1, s.TotalUsers)))
	return s, roles
}

type monthRow struct {
	Year          int `db:"year"`
	Month         int `db:"month"`
	TotalLoans    int `db:"total_loans"`
	ReturnedLoans int `db:"returned_loans"`
}

func monthlyStats(rows []monthRow) []MonthlyStat {
	out := make([]MonthlyStat, 0, len(rows))
	for _, r := range rows {
		out = append(out, MonthlyStat{
			Month:         fmt.Sprintf("%d-%d", r.Year, r.Month),
			TotalLoans:    r.TotalLoans,
			ReturnedLoans: r.ReturnedLoans,
			ActiveLoans:   r.TotalLoans - r.ReturnedLoans,
		})
	}
	return out
}
