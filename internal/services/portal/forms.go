package portal

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/ternarybob/tcsync/internal/models"
)

const selectOptionJS = `(function(id, text) {
	const select = document.getElementById(id);
	if (!select) { return false; }
	for (const option of select.options) {
		if (option.text.trim() === text) {
			select.value = option.value;
			select.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		}
	}
	return false;
})(%s, %s)`

const visibleJS = `(function(selector) {
	const el = document.querySelector(selector);
	if (!el) { return false; }
	return getComputedStyle(el).display !== 'none' && el.offsetParent !== null;
})(%s)`

const validationErrorsJS = `Array.from(document.querySelectorAll(%s))
	.map(el => el.textContent.trim())
	.filter(text => text.length > 0)`

const optionTextsJS = `Array.from(document.querySelectorAll(%s)).map(el => el.textContent)`

const clickNthJS = `(function(selector, index) {
	const els = document.querySelectorAll(selector);
	if (index < 0 || index >= els.length) { return false; }
	els[index].click();
	return true;
})(%s, %d)`

// CourseIndex returns the position of the option whose text is exactly name, ignoring
// surrounding and repeated whitespace, or -1. "Scaffold" never picks "Advanced Scaffold".
func CourseIndex(options []string, name string) int {
	want := strings.Join(strings.Fields(name), " ")
	if want == "" {
		return -1
	}
	for i, option := range options {
		if strings.Join(strings.Fields(option), " ") == want {
			return i
		}
	}
	return -1
}

// FillCreateForm enters a new student on the provider's create form and submits it.
// The returned messages are the inline validation errors left on the page; none means created.
func (b *Browser) FillCreateForm(ctx context.Context, form models.StudentForm) ([]string, error) {
	sel := b.config.Selectors

	if err := b.navigate(ctx, fmt.Sprintf(b.config.CreateStudentURL, b.config.ProviderID)); err != nil {
		return nil, err
	}

	actions := []chromedp.Action{
		chromedp.WaitVisible(sel.CreateFormReady, chromedp.ByQuery),
		chromedp.SendKeys("#FirstName", form.FirstName, chromedp.ByQuery),
	}
	if form.MiddleName != "" {
		actions = append(actions, chromedp.SendKeys("#MiddleName", form.MiddleName, chromedp.ByQuery))
	}
	actions = append(actions, chromedp.SendKeys("#LastName", form.LastName, chromedp.ByQuery))
	if form.Suffix != "" {
		actions = append(actions, chromedp.SendKeys("#Suffix", form.Suffix, chromedp.ByQuery))
	}
	actions = append(actions, chromedp.SetValue("#DateOfBirth", form.DateOfBirth, chromedp.ByQuery))
	if form.PhotoPath != "" {
		actions = append(actions, chromedp.SetUploadFiles(`input[type="file"]`, []string{form.PhotoPath}, chromedp.ByQuery))
	}
	actions = append(actions,
		chromedp.SendKeys("input#AddressNumber", form.HouseNumber, chromedp.ByQuery),
		chromedp.SendKeys("input#AddressName", form.StreetName, chromedp.ByQuery),
		chromedp.SendKeys("input#City", form.City, chromedp.ByQuery),
		chromedp.SendKeys(sel.StateInput, form.State, chromedp.ByQuery),
	)

	if err := b.run(ctx, b.loginWait, actions...); err != nil {
		return nil, fmt.Errorf("fill student form: %w", err)
	}

	var stateListed bool
	if err := b.run(ctx, b.selectorTimeout, chromedp.Evaluate(fmt.Sprintf(visibleJS, jsString(sel.StateDropdown)), &stateListed)); err != nil {
		return nil, fmt.Errorf("check state dropdown: %w", err)
	}
	if !stateListed {
		return nil, fmt.Errorf("%w: %q", ErrStateNotRecognized, form.State)
	}

	actions = []chromedp.Action{
		chromedp.KeyEvent(kb.Enter),
		chromedp.SendKeys("input#ZipCode", form.Zipcode, chromedp.ByQuery),
	}
	if form.Email != "" {
		actions = append(actions, chromedp.SendKeys("#Email", form.Email, chromedp.ByQuery))
	}
	actions = append(actions, chromedp.SendKeys("#Phone", form.Phone, chromedp.ByQuery))
	if err := b.run(ctx, b.selectorTimeout, actions...); err != nil {
		return nil, fmt.Errorf("fill student contact: %w", err)
	}

	for _, option := range []struct{ id, text string }{
		{"Height", form.Height},
		{"Gender", form.Gender},
		{"EyeColor", form.EyeColor},
	} {
		if option.text == "" {
			continue
		}
		if err := b.selectOption(ctx, option.id, option.text); err != nil {
			return nil, err
		}
	}

	var messages []string
	err := b.run(ctx, b.loginWait,
		chromedp.Click(sel.FormSubmit, chromedp.ByQuery),
		chromedp.Sleep(b.submitSettle),
		chromedp.Evaluate(fmt.Sprintf(validationErrorsJS, jsString(sel.ValidationError)), &messages),
	)
	if err != nil {
		return nil, fmt.Errorf("submit student form: %w", err)
	}

	b.logger.Debug().
		Int("validation_errors", len(messages)).
		Msg("Student form submitted")
	return messages, nil
}

// FillCertificateForm opens the profile's certificate form, fills it and waits for the confirmation
func (b *Browser) FillCertificateForm(ctx context.Context, profileURL string, form models.CertificateForm) error {
	sel := b.config.Selectors

	if err := b.navigate(ctx, profileURL); err != nil {
		return err
	}

	err := b.run(ctx, b.loginWait,
		chromedp.WaitVisible(sel.CertificateLink, chromedp.BySearch),
		chromedp.Click(sel.CertificateLink, chromedp.BySearch),
		chromedp.WaitVisible(sel.FormSubmit, chromedp.ByQuery),
		chromedp.WaitVisible(sel.CourseInput, chromedp.ByQuery),
		chromedp.Click(sel.CourseInput, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("open certificate form: %w", err)
	}

	var options []string
	err = b.run(ctx, b.selectorTimeout,
		chromedp.WaitVisible(sel.CourseOption, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(optionTextsJS, jsString(sel.CourseOption)), &options),
	)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	index := CourseIndex(options, form.CourseName)
	if err != nil || index < 0 {
		return fmt.Errorf("%w: %q", ErrCourseNotFound, form.CourseName)
	}

	var picked bool
	err = b.run(ctx, b.selectorTimeout,
		chromedp.Evaluate(fmt.Sprintf(clickNthJS, jsString(sel.CourseOption), index), &picked),
	)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil || !picked {
		return fmt.Errorf("select course %q: option list changed", form.CourseName)
	}

	err = b.run(ctx, b.loginWait,
		chromedp.SendKeys("input#CertificateNumber", form.CertificateNumber, chromedp.ByQuery),
		chromedp.SetValue(`input[name="IssueOrRefreshedOnDate"]`, form.IssueDate, chromedp.ByQuery),
		chromedp.SetValue(`input[name="ExpirationDate"]`, form.ExpirationDate, chromedp.ByQuery),
		chromedp.SendKeys("#TrainerName", form.TrainerName, chromedp.ByQuery),
		chromedp.SetUploadFiles(`input[name="FormPhotoFile"]`, []string{form.ImagePath}, chromedp.ByQuery),
		chromedp.Click(sel.FormSubmit, chromedp.ByQuery),
		chromedp.WaitVisible(sel.CertificateCreated, chromedp.BySearch),
	)
	if err != nil {
		return fmt.Errorf("submit certificate form: %w", err)
	}

	b.logger.Debug().
		Str("certificate", form.CertificateNumber).
		Str("course", form.CourseName).
		Msg("Certificate created in portal")
	return nil
}

func (b *Browser) selectOption(ctx context.Context, id, text string) error {
	var selected bool
	script := fmt.Sprintf(selectOptionJS, jsString(id), jsString(strings.TrimSpace(text)))
	if err := b.run(ctx, b.selectorTimeout, chromedp.Evaluate(script, &selected)); err != nil {
		return fmt.Errorf("select %s: %w", id, err)
	}
	if !selected {
		return &OptionError{Field: id, Value: text}
	}
	return nil
}
