package render

import (
	"bytes"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/starfederation/datastar-go/datastar"
)

// PatchFragment renders block of page and sends it to the browser as a
// datastar patch-elements event. The block's root element must carry the id
// of the element it replaces.
func PatchFragment(c echo.Context, page, block string, data any) error {
	html, err := Fragment(c, page, block, data)
	if err != nil {
		return err
	}
	sse := datastar.NewSSE(c.Response(), c.Request())
	return sse.PatchElements(html)
}

// Fragment renders block of page to a string.
func Fragment(c echo.Context, page, block string, data any) (string, error) {
	r := c.Echo().Renderer
	if r == nil {
		return "", fmt.Errorf("render: no renderer configured")
	}
	var buf bytes.Buffer
	if err := r.Render(&buf, page+"#"+block, data, c); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ReadSignals decodes the datastar signals of the request into v.
func ReadSignals(c echo.Context, v any) error {
	return datastar.ReadSignals(c.Request(), v)
}

// IsDatastar reports whether the request was sent by datastar.
func IsDatastar(c echo.Context) bool {
	return c.Request().Header.Get("Datastar-Request") != ""
}
