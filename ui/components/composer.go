package components

import (
	"github.com/glintlabs/glint/ui/styles"
)

func RenderComposer(input string, width int) string {
	return styles.ComposerStyle(width).Render(input)
}
