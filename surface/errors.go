package surface

import "errors"

// ErrSurfaceNotFound is returned when a referenced surface id has no live surface.
var ErrSurfaceNotFound = errors.New("surface: not found")

// ErrSurfaceExists is returned when a create collides with an existing id.
var ErrSurfaceExists = errors.New("surface: already exists")

// ErrSizePreset is returned when a size specifier names an unknown preset.
var ErrSizePreset = errors.New("surface: unknown size preset")
