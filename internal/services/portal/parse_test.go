package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/tcsync/internal/common"
)

const searchPage = `<html><body>
<table>
  <tr><td>Jane Doe</td><td><a role="button" href="/Students/Details/aaa">View</a></td></tr>
  <tr><td>Jane Doe</td><td><a role="button" href="/Students/Details/bbb">View</a></td></tr>
  <tr><td>Jane Doe</td><td><a role="button" href="/Students/Details/aaa">View</a></td></tr>
  <tr><td>Export</td><td><a role="button" href="/Export">Download</a></td></tr>
</table>
</body></html>`

func TestParseResultLinksFiltersByText(t *testing.T) {
	links, err := ParseResultLinks(searchPage, "https://portal.example.com/CourseProviders/StudentLookup/x", "a[role='button']", "View")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://portal.example.com/Students/Details/aaa",
		"https://portal.example.com/Students/Details/bbb",
	}, links)
}

func TestParseResultLinksWithoutFilter(t *testing.T) {
	links, err := ParseResultLinks(searchPage, "https://portal.example.com/", "a[role='button']", "")
	require.NoError(t, err)
	assert.Len(t, links, 3)
}

func TestParseResultLinksEmpty(t *testing.T) {
	links, err := ParseResultLinks("<html><body><p>No students found</p></body></html>", "https://portal.example.com/", "a[role='button']", "View")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func profilePage(photo string) string {
	return `<html><body>
<img class="sc-header-photo mx-auto" src="` + photo + `">
<div class="sc-field-value">P-100</div>
<div class="sc-field-value">Brown</div>
<div class="sc-field-value">5' 10"</div>
<div class="sc-field-value">ignored</div>
<div class="sc-field-value">Female</div>
<div class="sc-field-value">(555) 123-4567</div>
<div class="sc-field-value"> jane@example.com </div>
<div class="sc-field-value">04/01/1990</div>
<div class="sc-field-value">123 Main St,
   Springfield NY 10001</div>
<a class="h6 sc-link" href="/Students/Edit/aaa">Edit</a>
<a class="h6 sc-link" href="/CourseProviders/AddStudent/aaa">Add To Course Provider</a>
</body></html>`
}

func TestParseProfile(t *testing.T) {
	config := common.NewDefaultConfig()

	profile, err := ParseProfile(profilePage("/photos/aaa.jpg"), "https://portal.example.com/Students/Details/aaa",
		config.Portal.Selectors, config.Portal.ProfileFields)
	require.NoError(t, err)

	assert.Equal(t, "https://portal.example.com/photos/aaa.jpg", profile.PhotoURL)
	assert.Equal(t, "P-100", profile.PhotoID)
	assert.Equal(t, "Brown", profile.EyeColor)
	assert.Equal(t, `5' 10"`, profile.Height)
	assert.Equal(t, "Female", profile.Gender)
	assert.Equal(t, "(555) 123-4567", profile.Phone)
	assert.Equal(t, "jane@example.com", profile.Email)
	assert.Equal(t, "04/01/1990", profile.BirthDate)
	assert.Equal(t, "123 Main St, Springfield NY 10001", profile.Address)
	assert.Equal(t, "https://portal.example.com/CourseProviders/AddStudent/aaa", profile.AddToProviderURL)
}

func TestParseProfileMissingPhoto(t *testing.T) {
	config := common.NewDefaultConfig()

	profile, err := ParseProfile(profilePage("/images/MissingPerson.png"), "https://portal.example.com/Students/Details/aaa",
		config.Portal.Selectors, config.Portal.ProfileFields)
	require.NoError(t, err)
	assert.Empty(t, profile.PhotoURL)
}

func TestParseProfileNoFields(t *testing.T) {
	config := common.NewDefaultConfig()

	_, err := ParseProfile("<html><body></body></html>", "https://portal.example.com/x",
		config.Portal.Selectors, config.Portal.ProfileFields)
	assert.Error(t, err)
}

func TestJSString(t *testing.T) {
	assert.Equal(t, `"a[role='button']"`, jsString("a[role='button']"))
	assert.Equal(t, `"say \"hi\""`, jsString(`say "hi"`))
}

func TestCourseIndexRequiresExactName(t *testing.T) {
	options := []string{
		"\n  Advanced Scaffold Rigging\n",
		"Scaffold Rigging Refresher",
		"  Scaffold   Rigging ",
	}

	assert.Equal(t, 2, CourseIndex(options, "Scaffold Rigging"))
	assert.Equal(t, 0, CourseIndex(options, " Advanced Scaffold Rigging"))
	assert.Equal(t, -1, CourseIndex(options, "Scaffold"))
	assert.Equal(t, -1, CourseIndex(options, "scaffold rigging"))
	assert.Equal(t, -1, CourseIndex(options, ""))
	assert.Equal(t, -1, CourseIndex(nil, "Scaffold Rigging"))
}
