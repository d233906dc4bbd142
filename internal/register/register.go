// Package register files the registration form on a game page through a
// headless browser. It is a deliberately opaque collaborator: one attempt per
// call, success or an error, no retries.
package register

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"quizbot/internal/models"
)

var ErrCaptcha = errors.New("captcha on registration page")

var successIndicators = []string{
	"успешно",
	"зарегистрирован",
	"спасибо",
	"подтверждение",
	"отправлено",
}

var errorIndicators = []string{
	"ошибка",
	"неверно",
	"заполните",
	"обязательно",
}

const submitTimeout = 90 * time.Second

// Browser submits registration forms via chromedp.
type Browser struct{}

func NewBrowser() *Browser {
	return &Browser{}
}

// Submit opens the game page, fills the team form and presses the submit
// button, then scans the resulting page text for success or error wording.
func (b *Browser) Submit(ctx context.Context, gameURL string, team models.TeamInfo) error {
	log.Printf("[register] submitting %s for team %q", gameURL, team.TeamName)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, submitTimeout)
	defer cancelTimeout()

	players := team.PlayerCount
	if players < 1 {
		players = 4
	}

	var bodyText string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(gameURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500*time.Millisecond),
		chromedp.Text("body", &bodyText, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("open registration page: %w", err)
	}
	lower := strings.ToLower(bodyText)
	if strings.Contains(lower, "captcha") || strings.Contains(lower, "подтвердите") {
		return ErrCaptcha
	}

	err = chromedp.Run(tabCtx,
		chromedp.WaitVisible(`input[name="team"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="team"]`, team.TeamName, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="name"]`, team.CaptainName, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="email"]`, team.Email, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="phone"]`, team.Phone, chromedp.ByQuery),
		chromedp.SetValue(`select[name="num"]`, strconv.Itoa(players), chromedp.ByQuery),
		chromedp.Click(`input[name="privacy"]`, chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill registration form: %w", err)
	}

	// AJAX forms may not navigate; give the response a moment either way.
	err = chromedp.Run(tabCtx,
		chromedp.Sleep(2*time.Second),
		chromedp.Text("body", &bodyText, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("read submission response: %w", err)
	}

	lower = strings.ToLower(bodyText)
	for _, indicator := range errorIndicators {
		if strings.Contains(lower, indicator) {
			return fmt.Errorf("registration page reported an error (%q)", indicator)
		}
	}
	for _, indicator := range successIndicators {
		if strings.Contains(lower, indicator) {
			return nil
		}
	}

	// No clear indicator either way; treat as accepted.
	log.Printf("[register] no explicit confirmation on %s, assuming success", gameURL)
	return nil
}
