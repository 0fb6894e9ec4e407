// Package plans описывает каталог тарифных планов: цены по периодам оплаты,
// флаги возможностей и ограничения использования.
package plans

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"
)

// Названия планов.
const (
	Free                           = "free"
	StudentPremium                 = "student_premium"
	StudentParentPremiumPro        = "student_parent_premium_pro"
	EducationalInstitutionsPremium = "educational_institutions_premium"
)

// Периоды оплаты.
const (
	CycleMonthly = "monthly"
	CycleYearly  = "yearly"
)

// Возможности планов.
const (
	FeatureBasicGames          = "basic_games"
	FeatureAllGames            = "all_games"
	FeatureProgressReports     = "progress_reports"
	FeatureParentDashboard     = "parent_dashboard"
	FeatureParentNotifications = "parent_notifications"
	FeatureSchoolDashboard     = "school_dashboard"
	FeatureClassManagement     = "class_management"
	FeatureBulkStudents        = "bulk_students"
)

// Ключи ограничений. Значение 0 означает отсутствие ограничения.
const (
	LimitGamesPerDay = "games_per_day"
	LimitChildren    = "children"
	LimitStudents    = "students"
	LimitClasses     = "classes"
)

// Currency валюта цен каталога.
const Currency = "usd"

var (
	// ErrUnknownPlan план отсутствует в каталоге.
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrUnknownCycle неизвестный период оплаты.
	ErrUnknownCycle = errors.New("unknown billing cycle")
)

// Plan описание тарифного плана.
type Plan struct {
	Name     string           `json:"name"`
	Title    string           `json:"title"`
	Prices   map[string]int64 `json:"prices"` // период -> цена в центах
	Features []string         `json:"features"`
	Limits   map[string]int   `json:"limits"`
}

var catalog = map[string]Plan{
	Free: {
		Name:     Free,
		Title:    "Free",
		Prices:   map[string]int64{CycleMonthly: 0, CycleYearly: 0},
		Features: []string{FeatureBasicGames},
		Limits:   map[string]int{LimitGamesPerDay: 5, LimitChildren: 1},
	},
	StudentPremium: {
		Name:     StudentPremium,
		Title:    "Student Premium",
		Prices:   map[string]int64{CycleMonthly: 499, CycleYearly: 4990},
		Features: []string{FeatureBasicGames, FeatureAllGames, FeatureProgressReports},
		Limits:   map[string]int{LimitChildren: 1},
	},
	StudentParentPremiumPro: {
		Name:   StudentParentPremiumPro,
		Title:  "Student + Parent Premium Pro",
		Prices: map[string]int64{CycleMonthly: 999, CycleYearly: 9990},
		Features: []string{FeatureBasicGames, FeatureAllGames, FeatureProgressReports,
			FeatureParentDashboard, FeatureParentNotifications},
		Limits: map[string]int{LimitChildren: 5},
	},
	EducationalInstitutionsPremium: {
		Name:   EducationalInstitutionsPremium,
		Title:  "Educational Institutions Premium",
		Prices: map[string]int64{CycleMonthly: 19900, CycleYearly: 199000},
		Features: []string{FeatureBasicGames, FeatureAllGames, FeatureProgressReports,
			FeatureSchoolDashboard, FeatureClassManagement, FeatureBulkStudents},
		Limits: map[string]int{LimitStudents: 500, LimitClasses: 50},
	},
}

// Get возвращает план по имени.
func Get(name string) (Plan, error) {
	p, ok := catalog[name]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, name)
	}
	return p, nil
}

// All возвращает все планы, упорядоченные по месячной цене.
func All() []Plan {
	res := make([]Plan, 0, len(catalog))
	for _, p := range catalog {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Prices[CycleMonthly] < res[j].Prices[CycleMonthly]
	})
	return res
}

// Price возвращает цену плана за период в центах.
func Price(name, cycle string) (int64, error) {
	p, err := Get(name)
	if err != nil {
		return 0, err
	}
	price, ok := p.Prices[cycle]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCycle, cycle)
	}
	return price, nil
}

// IsPaid сообщает, требует ли план оплаты.
func IsPaid(name string) bool {
	p, ok := catalog[name]
	return ok && p.Prices[CycleMonthly] > 0
}

// Has проверяет наличие возможности у плана.
func Has(name, feature string) bool {
	p, ok := catalog[name]
	return ok && slices.Contains(p.Features, feature)
}

// Limit возвращает ограничение плана, 0 означает отсутствие ограничения.
func Limit(name, key string) int {
	p, ok := catalog[name]
	if !ok {
		return 0
	}
	return p.Limits[key]
}

// NextEndDate сдвигает дату на один период оплаты.
func NextEndDate(base time.Time, cycle string) (time.Time, error) {
	switch cycle {
	case CycleMonthly:
		return base.AddDate(0, 1, 0), nil
	case CycleYearly:
		return base.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownCycle, cycle)
	}
}

// RenewalBase дата, от которой отсчитывается продление: конец текущего срока,
// если он ещё не наступил, иначе текущий момент.
func RenewalBase(now, currentEnd time.Time) time.Time {
	if currentEnd.After(now) {
		return currentEnd
	}
	return now
}
