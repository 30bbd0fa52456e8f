package pagination

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromQuery(t *testing.T) {
	assert.Equal(t, Params{Page: 0, Size: DefaultSize}, FromQuery(url.Values{}))
	assert.Equal(t, Params{Page: 2, Size: 5}, FromQuery(url.Values{"page": {"2"}, "size": {"5"}}))
	assert.Equal(t, Params{Page: 0, Size: MaxSize}, FromQuery(url.Values{"page": {"-3"}, "size": {"1000"}}))
	assert.Equal(t, Params{Page: 0, Size: DefaultSize}, FromQuery(url.Values{"page": {"x"}, "size": {"y"}}))
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 20, Params{Page: 2, Size: 10}.Offset())
	assert.Equal(t, 0, Params{Page: -1, Size: 0}.Offset())
}

func TestNewPage(t *testing.T) {
	page := NewPage([]string{"a", "b"}, Params{Page: 1, Size: 2}, 5)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, int64(5), page.Total)
	assert.Len(t, page.Items, 2)

	empty := NewPage[string](nil, Params{}, 0)
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.TotalPages)
}
