// Package multipart builds multipart/form-data request bodies.
//
// Parts are kept in the order they are appended. The boundary is chosen when
// the body is finalized and is checked against every part so it can never
// occur inside the content it delimits.
//
// Supported parts:
//   - Raw parts with caller-supplied headers
//   - Form fields (Content-Disposition: form-data; name="...")
//   - File fields from memory or disk, with generated or explicit file names
//   - Raw bytes and encoded strings appended to the current part
package multipart
