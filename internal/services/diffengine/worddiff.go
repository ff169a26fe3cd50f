package diffengine

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/wofare/edgarwatch/internal/models"
)

const maxHunkContext = 200

// wordDiff computes word-level change hunks between two texts. Adjacent
// delete+insert pairs collapse into one modification hunk. The underlying
// diff is stable: equal inputs produce a single equal run and no hunks.
func wordDiff(oldText, newText string) []models.Change {
	oldWords := strings.Fields(oldText)
	newWords := strings.Fields(newText)

	encoded1, encoded2 := encodeWords(oldWords, newWords)

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(encoded1, encoded2, false)

	return groupHunks(diffs, oldWords, newWords)
}

// encodeWords maps each distinct word to one rune so the character diff
// operates at word granularity.
func encodeWords(oldWords, newWords []string) (string, string) {
	vocab := make(map[string]rune)
	next := rune(1)

	encode := func(words []string) string {
		var sb strings.Builder
		for _, w := range words {
			r, ok := vocab[w]
			if !ok {
				r = next
				vocab[w] = r
				next++
				if next == 0xD800 { // skip the surrogate range
					next = 0xE000
				}
			}
			sb.WriteRune(r)
		}
		return sb.String()
	}

	return encode(oldWords), encode(newWords)
}

// groupHunks walks the diff run and emits one Change per non-equal hunk,
// collapsing a deletion immediately followed by an insertion into a
// modification. Positions are word offsets into the new text (old text for
// pure deletions).
func groupHunks(diffs []diffmatchpatch.Diff, oldWords, newWords []string) []models.Change {
	var changes []models.Change

	oldPos, newPos := 0, 0
	for i := 0; i < len(diffs); i++ {
		d := diffs[i]
		n := len([]rune(d.Text))

		switch d.Type {
		case diffmatchpatch.DiffEqual:
			oldPos += n
			newPos += n

		case diffmatchpatch.DiffDelete:
			deleted := strings.Join(oldWords[oldPos:oldPos+n], " ")
			oldPos += n

			// A delete followed by an insert is one modification.
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				ins := diffs[i+1]
				m := len([]rune(ins.Text))
				inserted := strings.Join(newWords[newPos:newPos+m], " ")
				changes = append(changes, models.Change{
					ChangeType: models.ChangeModification,
					OldText:    deleted,
					NewText:    inserted,
					Context:    hunkContext(newWords, newPos, m),
					Position:   newPos,
				})
				newPos += m
				i++
				continue
			}

			changes = append(changes, models.Change{
				ChangeType: models.ChangeDeletion,
				OldText:    deleted,
				Context:    hunkContext(oldWords, oldPos-n, n),
				Position:   oldPos - n,
			})

		case diffmatchpatch.DiffInsert:
			inserted := strings.Join(newWords[newPos:newPos+n], " ")
			changes = append(changes, models.Change{
				ChangeType: models.ChangeAddition,
				NewText:    inserted,
				Context:    hunkContext(newWords, newPos, n),
				Position:   newPos,
			})
			newPos += n
		}
	}

	return changes
}

// hunkContext returns up to maxHunkContext characters of text surrounding
// the hunk at [start, start+length) in words.
func hunkContext(words []string, start, length int) string {
	const span = 8 // words on each side

	from := start - span
	if from < 0 {
		from = 0
	}
	to := start + length + span
	if to > len(words) {
		to = len(words)
	}

	ctx := strings.Join(words[from:to], " ")
	if len(ctx) > maxHunkContext {
		ctx = ctx[:maxHunkContext]
	}
	return ctx
}
