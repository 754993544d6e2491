package capture

import (
	"errors"
	"image"
)

// Tee returns a compositor whose surfaces present to a surface from each of
// comps. A nil entry is skipped.
func Tee(comps ...Compositor) Compositor {
	var live []Compositor
	for _, c := range comps {
		if c != nil {
			live = append(live, c)
		}
	}
	return teeCompositor(live)
}

type teeCompositor []Compositor

func (t teeCompositor) CreateSurface() (Surface, error) {
	surfaces := make(teeSurface, 0, len(t))
	for _, c := range t {
		s, err := c.CreateSurface()
		if err != nil {
			surfaces.Close()
			return nil, err
		}
		surfaces = append(surfaces, s)
	}
	return surfaces, nil
}

type teeSurface []Surface

func (t teeSurface) Present(img *image.RGBA) error {
	var errs []error
	for _, s := range t {
		if err := s.Present(img); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t teeSurface) Close() error {
	var errs []error
	for _, s := range t {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
