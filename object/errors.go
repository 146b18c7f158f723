// Copyright (C) 2024 the lst authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package object

import "errors"

// Fatal host errors. Every one of these aborts the owning process with a
// short/long message pair; none propagate as language-level exceptions.
var (
	ErrOutOfSlots   = errors.New("object table exhausted")
	ErrTooLarge     = errors.New("object size exceeds profile's size field")
	ErrCorruptImage = errors.New("image stream is truncated or fails its checksum")
	ErrBadIndex     = errors.New("reference does not index a live slot")
)

// FatalError pairs a short diagnostic with a longer explanation, matching
// the source's convention of reporting a (short, long) message pair on
// any non-recoverable condition.
type FatalError struct {
	Short string
	Long  string
	Err   error
}

func (e *FatalError) Error() string {
	if e.Long != "" {
		return e.Short + ": " + e.Long
	}
	return e.Short
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatalf builds a FatalError wrapping err with a short/long pair.
func Fatalf(short, long string, err error) *FatalError {
	return &FatalError{Short: short, Long: long, Err: err}
}
