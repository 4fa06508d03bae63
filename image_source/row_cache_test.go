package image_source

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// bandLoader renders row bands of a stripes image and counts the renders.
type bandLoader struct {
	img   *NativeImage
	loads atomic.Int32
	fail  error
}

func (l *bandLoader) load(y0, y1 int) ([]byte, error) {
	l.loads.Add(1)
	if l.fail != nil {
		return nil, l.fail
	}
	region, err := l.img.Region(image.Rect(0, y0, l.img.Width(), y1))
	if err != nil {
		return nil, err
	}
	n := (y1 - y0) * region.Stride
	return append([]byte(nil), region.Pix[:n]...), nil
}

func newBandLoader(t *testing.T, w, h int) *bandLoader {
	t.Helper()
	img, err := FromImage(stripes(w, h))
	require.NoError(t, err)
	return &bandLoader{img: img}
}

func TestRowCacheSharesBand(t *testing.T) {
	l := newBandLoader(t, 48, 32)
	c := newRowCache(48, rgbBands, 2, l.load)

	for x := 0; x < 48; x += 16 {
		r := image.Rect(x, 16, x+16, 32)
		got, err := c.region(r)
		require.NoError(t, err)

		want, err := l.img.Region(r)
		require.NoError(t, err)
		require.Equal(t, want.Stride, got.Stride)
		for row := 0; row < r.Dy(); row++ {
			require.Equal(t,
				want.Pix[row*want.Stride:row*want.Stride+16*rgbBands],
				got.Pix[row*got.Stride:row*got.Stride+16*rgbBands])
		}
	}
	require.EqualValues(t, 1, l.loads.Load())
}

func TestRowCacheEvictsOldest(t *testing.T) {
	l := newBandLoader(t, 16, 64)
	c := newRowCache(16, rgbBands, 2, l.load)

	for _, y := range []int{0, 16, 32, 0} {
		_, err := c.region(image.Rect(0, y, 16, y+16))
		require.NoError(t, err)
	}
	require.EqualValues(t, 4, l.loads.Load(), "band 0 should have been evicted")

	_, err := c.region(image.Rect(0, 32, 16, 48))
	require.NoError(t, err)
	require.EqualValues(t, 4, l.loads.Load())
}

func TestRowCacheConcurrentLoadOnce(t *testing.T) {
	l := newBandLoader(t, 256, 16)
	c := newRowCache(256, rgbBands, defaultCachedBands, l.load)

	errs := make([]error, 16)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.region(image.Rect(i*16, 0, i*16+16, 16))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, l.loads.Load())
}

func TestRowCacheLoadFault(t *testing.T) {
	l := newBandLoader(t, 16, 16)
	l.fail = errors.New("render failed")
	c := newRowCache(16, rgbBands, 1, l.load)

	_, err := c.region(image.Rect(0, 0, 16, 16))
	require.ErrorIs(t, err, l.fail)
}
