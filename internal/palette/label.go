// Package palette routes a question to one of a fixed set of response
// strategies and returns a single response envelope per run.
package palette

import (
	"strconv"
	"strings"
)

// ClassifierContractVersion identifies the prompt and parsing grammar below.
// Bump it whenever either changes; they are only valid together.
const ClassifierContractVersion = "2024-03.1"

// Label is the classifier's verdict. It is chosen once per run.
type Label int

const (
	LabelDefault Label = iota
	LabelImageRequest
	LabelArithmeticPuzzle
)

func (l Label) String() string {
	switch l {
	case LabelImageRequest:
		return "image_request"
	case LabelArithmeticPuzzle:
		return "arithmetic_puzzle"
	default:
		return "default"
	}
}

const (
	markerImage      = "(a)"
	markerArithmetic = "(b)"
)

const classifierSystemPrompt = `You are an Assistant that is classifying questions by their intention.

Categories are:
(A) Asking for generating images
(B) Given four numbers, the task is to check if there is a way to achieve the number 24 using only the four basic arithmetic operations: addition, subtraction, multiplication, and division. This challenge is commonly known as 'Make 24' or 'The 24 Game'.
(D) Others`

const classifierInstruction = `Based on the intent of the question, select the category of the question. Your response should be in the format of '(A)', '(B)', '(D)'. If you believe the question category is '(A)', then also reply with the content description of the image to be generated and the number of images, separated by a comma. If the user does not mention the number of images, then default to generating 1 image. For example, if the question is 'Please help me generate 2 images featuring Optimus Prime from Transformers,' then your reply should be '(A),images featuring Optimus Prime from Transformers,2'. If the question is 'Generate 3 images of a puppy running on the beach', then your reply should be '(A),a puppy running on the beach,3'. If the question is 'Three boys in a high jump competition', then your reply should be '(A),three boys in a high jump competition,1'.`

// classifierUserPrompt wraps the question the way the category examples expect.
func classifierUserPrompt(question string) string {
	return "Question:\n<question>\n" + question + "\n</question>\n\n" + classifierInstruction
}

// ImageRequest is the payload of an image classification.
type ImageRequest struct {
	Description string
	Count       int
}

// Classification is the parsed classifier output.
type Classification struct {
	Label Label
	Raw   string // classifier output as returned
	Aux   string // text after the category marker
	Image ImageRequest
}

// ParseClassification turns classifier output into a Classification. It never
// fails: anything that is not an image or arithmetic marker is LabelDefault.
func ParseClassification(raw string) Classification {
	c := Classification{Raw: raw, Label: parseLabel(raw)}
	if c.Label == LabelDefault {
		return c
	}
	trimmed := strings.TrimSpace(raw)
	c.Aux = strings.TrimSpace(trimmed[len(markerImage):])
	if c.Label == LabelImageRequest {
		c.Image = parseImageRequest(trimmed)
	}
	return c
}

// parseLabel is the fallback-to-default branch: empty, unknown or malformed
// output all map to LabelDefault.
func parseLabel(raw string) Label {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(cleaned, markerImage):
		return LabelImageRequest
	case strings.HasPrefix(cleaned, markerArithmetic):
		return LabelArithmeticPuzzle
	default:
		return LabelDefault
	}
}

// parseImageRequest reads "(a),<description>,<count>". The count falls back
// to 1 when it is missing, not an integer or not positive.
func parseImageRequest(output string) ImageRequest {
	req := ImageRequest{Count: 1}
	values := strings.Split(output, ",")
	if len(values) < 2 {
		return req
	}
	req.Description = strings.TrimSpace(values[1])
	if len(values) > 2 {
		if n, err := strconv.Atoi(strings.TrimSpace(values[2])); err == nil && n > 0 {
			req.Count = n
		}
	}
	return req
}
