package koubs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"koubs-backend/lib/browser"
	"koubs-backend/lib/htmlutil"
)

// the portal renders the course table under one of these, in order of
// how specific they are
var courseTableSelectors = []string{
	"table.table.table-condensed",
	"table[border='1']",
	"div#AlinanDersler table",
	"table",
}

const instructorLabel = "Dersin Öğretim Elemanı:"

type courseDetail struct {
	Instructor      string
	Activities      []CourseActivity
	SemesterAverage string
}

// Collector walks the authenticated grades UI and extracts every
// semester's course table plus per-course detail modals.
type Collector struct {
	drv        browser.Driver
	normalizer *htmlutil.Normalizer

	// detail modals are shared between courses that repeat across
	// semesters, keyed by the portal's detail link name
	detailMemo *expirable.LRU[string, courseDetail]
	// keeps detail clicks from hammering the portal
	limiter *rate.Limiter

	// Progress, when set, is notified before each semester is processed.
	Progress func(semester Semester, index, total int)

	defaultWait time.Duration
	modalWait   time.Duration
	settle      time.Duration
	pollEvery   time.Duration
}

func NewCollector(drv browser.Driver) *Collector {
	return &Collector{
		drv:         drv,
		normalizer:  htmlutil.NewNormalizer(1024),
		detailMemo:  expirable.NewLRU[string, courseDetail](1024, nil, time.Hour),
		limiter:     rate.NewLimiter(rate.Limit(4), 1),
		defaultWait: time.Second * 15,
		modalWait:   time.Second * 2,
		settle:      time.Millisecond * 1500,
		pollEvery:   time.Millisecond * 500,
	}
}

// CollectAll gathers every semester's courses. Navigation failure is
// fatal and returns an error; per-semester and per-course failures are
// absorbed, those entries are simply missing or blank.
func (c *Collector) CollectAll(ctx context.Context) (Aggregate, error) {
	ctx, span := tracer.Start(ctx, "collector:collect_all")
	defer span.End()

	err := c.navigateToGrades(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "navigation failed")
		return nil, err
	}

	semesters, err := c.semesters(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to enumerate semesters", "err", err)
		return Aggregate{}, nil
	}
	if len(semesters) == 0 {
		slog.WarnContext(ctx, "semester selector is empty")
		return Aggregate{}, nil
	}

	out := Aggregate{}
	for i, semester := range semesters {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if c.Progress != nil {
			c.Progress(semester, i, len(semesters))
		}

		courses, err := c.semesterCourses(ctx, semester)
		if err != nil {
			slog.WarnContext(ctx, "failed to load semester, skipping",
				"semester", semester.Name, "err", err)
			continue
		}
		if len(courses) == 0 {
			continue
		}
		c.enrichDetails(ctx, courses)
		out[semester.Value] = SemesterGrades{
			SemesterName: semester.Name,
			Courses:      courses,
		}
	}

	span.SetAttributes(
		attribute.Int("custom.semesters", len(out)),
		attribute.Int("custom.courses", out.TotalCourses()),
	)
	return out, nil
}

func (c *Collector) navigateToGrades(ctx context.Context) error {
	url, err := c.drv.CurrentURL(ctx)
	if err != nil || !strings.Contains(url, "AnaGiris.cfm") {
		err = c.drv.Navigate(ctx, MainPageURL)
		if err != nil {
			return fmt.Errorf("%w: open landing page: %w", ErrNavigation, err)
		}
		sleep(ctx, time.Second)
	}

	err = c.clickWhenPresent(ctx, "#DersIslemleri")
	if err != nil {
		return fmt.Errorf("%w: course operations menu: %w", ErrNavigation, err)
	}
	sleep(ctx, time.Millisecond*300)

	err = c.clickWhenPresent(ctx, "a[name='YariyilNotDurumuYeni/DersIslemleri']")
	if err != nil {
		return fmt.Errorf("%w: semester grade status link: %w", ErrNavigation, err)
	}
	sleep(ctx, c.settle)

	// the portal renders one of two layouts
	err = waitUntil(ctx, c.defaultWait, c.pollEvery, func(ctx context.Context) bool {
		if found, _ := c.drv.Exists(ctx, "#Donem"); found {
			return true
		}
		found, _ := c.drv.Exists(ctx, "#AlinanDersler")
		return found
	})
	if err != nil {
		return ErrNavigation
	}
	return nil
}

func (c *Collector) clickWhenPresent(ctx context.Context, selector string) error {
	err := waitUntil(ctx, c.defaultWait, c.pollEvery, func(ctx context.Context) bool {
		found, _ := c.drv.Exists(ctx, selector)
		return found
	})
	if err != nil {
		return fmt.Errorf("element %q never appeared", selector)
	}
	return c.drv.Click(ctx, selector)
}

type semesterOption struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

const semesterOptionsScript = `(() => {
	const sel = document.querySelector('#Donem');
	if (!sel) { return []; }
	const out = [];
	for (const opt of sel.options) {
		out.push({value: opt.value, text: (opt.textContent || '').trim()});
	}
	return out;
})()`

// semesters enumerates the selector options, keeping only options with
// both a non-empty value and a non-empty label.
func (c *Collector) semesters(ctx context.Context) ([]Semester, error) {
	var options []semesterOption
	err := c.drv.Evaluate(ctx, semesterOptionsScript, &options)
	if err != nil {
		return nil, err
	}

	var semesters []Semester
	for _, opt := range options {
		name := c.normalizer.Clean(opt.Text)
		if opt.Value == "" || name == "" {
			continue
		}
		semesters = append(semesters, Semester{Value: opt.Value, Name: name})
	}
	return semesters, nil
}

type rawCourseRow struct {
	Cells     []string `json:"cells"`
	DetailKey string   `json:"detailKey"`
}

type tableScan struct {
	Found bool           `json:"found"`
	Rows  []rawCourseRow `json:"rows"`
}

// a course row carries at least this many cells; anything shorter is a
// header, separator or summary row
const minCourseCells = 11

// bulkExtractScript pulls every row of the first matching table with
// more than a header row, in one page round trip.
func bulkExtractScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const tables = document.querySelectorAll(%q);
	for (const table of tables) {
		const rows = table.getElementsByTagName('tr');
		if (rows.length <= 1) { continue; }
		const data = [];
		for (let i = 1; i < rows.length; i++) {
			const tds = rows[i].getElementsByTagName('td');
			const cells = [];
			for (const td of tds) { cells.push(td.textContent || ''); }
			const link = tds.length > 2 ? tds[2].querySelector('a') : null;
			data.push({
				cells: cells,
				detailKey: link ? (link.getAttribute('name') || '') : ''
			});
		}
		return {found: true, rows: data};
	}
	return {found: false, rows: []};
})()`, selector)
}

// courseFromRow maps a raw table row onto a Course by fixed cell
// positions. Rows below the cell threshold are rejected outright.
func (c *Collector) courseFromRow(row rawCourseRow) (Course, bool) {
	if len(row.Cells) < minCourseCells {
		return Course{}, false
	}
	// the name cell may carry the detail link's text on a second line
	name := strings.SplitN(row.Cells[2], "\n", 2)[0]
	course := Course{
		Sequence:   c.normalizer.Clean(row.Cells[0]),
		Code:       c.normalizer.Clean(row.Cells[1]),
		Name:       c.normalizer.Clean(name),
		Attendance: c.normalizer.Clean(row.Cells[3]),
		Language:   c.normalizer.Clean(row.Cells[4]),
		Ects:       c.normalizer.Clean(row.Cells[5]),
		Yio:        c.normalizer.Clean(row.Cells[6]),
		Yys:        c.normalizer.Clean(row.Cells[7]),
		But:        c.normalizer.Clean(row.Cells[8]),
		Bn:         c.normalizer.Clean(row.Cells[9]),
		Bd:         c.normalizer.Clean(row.Cells[10]),
		detailKey:  row.DetailKey,
	}
	// structural completeness: a course without both code and name is
	// a filler row
	if course.Code == "" || course.Name == "" {
		return Course{}, false
	}
	return course, true
}

func (c *Collector) semesterCourses(ctx context.Context, semester Semester) ([]Course, error) {
	ctx, span := tracer.Start(ctx, "collector:semester_courses")
	defer span.End()
	span.SetAttributes(attribute.String("custom.semester", semester.Value))

	err := c.drv.SelectOption(ctx, "#Donem", semester.Value)
	if err != nil {
		return nil, fmt.Errorf("select semester: %w", err)
	}
	// wait out the AJAX refresh
	sleep(ctx, c.settle)

	var scan tableScan
	for _, selector := range courseTableSelectors {
		err := c.drv.Evaluate(ctx, bulkExtractScript(selector), &scan)
		if err != nil {
			slog.DebugContext(ctx, "table scan failed",
				"selector", selector, "err", err)
			continue
		}
		if scan.Found {
			break
		}
	}
	if !scan.Found {
		return nil, nil
	}

	var courses []Course
	for _, row := range scan.Rows {
		course, ok := c.courseFromRow(row)
		if !ok {
			continue
		}
		courses = append(courses, course)
	}
	return courses, nil
}

// enrichDetails fills instructor/activity data for courses that expose a
// detail modal. A failure on one course never aborts the batch, that
// course just keeps blank optional fields.
func (c *Collector) enrichDetails(ctx context.Context, courses []Course) {
	for i := range courses {
		key := courses[i].detailKey
		if key == "" {
			continue
		}
		if detail, hit := c.detailMemo.Get(key); hit {
			applyDetail(&courses[i], detail)
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
		detail := c.extractDetail(ctx, key)
		c.detailMemo.Add(key, detail)
		applyDetail(&courses[i], detail)
	}
}

func applyDetail(course *Course, detail courseDetail) {
	course.Instructor = detail.Instructor
	course.Activities = detail.Activities
	course.SemesterAverage = detail.SemesterAverage
}

// extractDetail opens one course's detail modal and scrapes it. Every
// failure mode degrades to a blank detail.
func (c *Collector) extractDetail(ctx context.Context, detailKey string) courseDetail {
	var detail courseDetail

	escaped := strings.ReplaceAll(detailKey, `'`, `\'`)
	err := c.drv.Click(ctx, fmt.Sprintf("a[name='%s']", escaped))
	if err != nil {
		slog.DebugContext(ctx, "detail link click failed", "key", detailKey, "err", err)
		return detail
	}
	sleep(ctx, time.Millisecond*300)

	// detail panels are fast or effectively absent
	err = waitUntil(ctx, c.modalWait, c.pollEvery, func(ctx context.Context) bool {
		found, _ := c.drv.Exists(ctx, "#ModalBody")
		return found
	})
	if err != nil {
		return detail
	}

	source, err := c.drv.PageSource(ctx)
	if err == nil {
		detail = c.parseDetailModal(source)
	}

	// close the modal so the next click lands on the table again
	err = c.drv.Evaluate(ctx, "$('#Modal').modal('hide');", nil)
	if err != nil {
		slog.DebugContext(ctx, "modal dismiss failed", "err", err)
	}
	sleep(ctx, time.Millisecond*100)

	return detail
}

func (c *Collector) parseDetailModal(source string) courseDetail {
	var detail courseDetail

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return detail
	}
	modal := doc.Find("#ModalBody")
	if modal.Length() == 0 {
		return detail
	}

	banner := modal.Find("h4.alert.alert-info").First()
	if banner.Length() > 0 {
		text := htmlutil.GetText(banner.Get(0))
		if strings.Contains(text, instructorLabel) {
			detail.Instructor = strings.TrimSpace(
				strings.Replace(text, instructorLabel, "", 1),
			)
		}
	}

	modal.Find("div.bg-warning").Each(func(_ int, row *goquery.Selection) {
		columns := row.Find("div[class*='col-lg-']")
		if columns.Length() < 6 {
			return
		}
		detail.Activities = append(detail.Activities, CourseActivity{
			ActivityType:   c.normalizer.Clean(htmlutil.GetText(columns.Get(0))),
			Score:          c.normalizer.Clean(htmlutil.GetText(columns.Get(1))),
			Percentage:     c.normalizer.Clean(htmlutil.GetText(columns.Get(3))),
			SemesterEffect: c.normalizer.Clean(htmlutil.GetText(columns.Get(5))),
		})
	})

	return detail
}
