package opengl

import (
	"fmt"
	"image"
	"strings"

	"github.com/go-gl/gl/v2.1/gl"
	"github.com/grafika-go/camcorder/pkg/graphics"
	"github.com/grafika-go/camcorder/pkg/media"
)

func glError(op string) error {
	if e := gl.GetError(); e != gl.NO_ERROR {
		return fmt.Errorf("%v: GL error 0x%X", op, e)
	}
	return nil
}

type texture struct {
	id   uint32
	w, h int
}

func newTexture(w, h int) (*texture, error) {
	t := texture{w: w, h: h}
	gl.GenTextures(1, &t.id)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(w), int32(h), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	if err := glError("texture"); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *texture) ID() uint32       { return t.id }
func (t *texture) Size() (int, int) { return t.w, t.h }

func (t *texture) Upload(img *image.RGBA) error {
	if img.Bounds().Dx() != t.w || img.Bounds().Dy() != t.h {
		return fmt.Errorf("texture is %vx%v, image is %v", t.w, t.h, img.Bounds().Size())
	}
	pix := img.Pix[img.PixOffset(img.Bounds().Min.X, img.Bounds().Min.Y):]
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, int32(img.Stride/4))
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(t.w), int32(t.h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pix))
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, 0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	// other contexts read the texture
	gl.Flush()
	return glError("upload")
}

type quad struct {
	program  uint32
	vbo      [2]uint32
	aPos     uint32
	aTex     uint32
	uMVP     int32
	uTex     int32
	uSampler int32
	tex      uint32
}

func newQuad(flip graphics.Flip, tex graphics.Texture) (*quad, error) {
	program, err := newProgram(graphics.VertexShader, graphics.FragmentShader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", graphics.ErrShader, err)
	}
	q := quad{program: program, tex: tex.ID()}

	aPos := gl.GetAttribLocation(program, gl.Str("aPosition\x00"))
	aTex := gl.GetAttribLocation(program, gl.Str("aTextureCoord\x00"))
	if aPos < 0 || aTex < 0 {
		gl.DeleteProgram(program)
		return nil, fmt.Errorf("%w: no vertex attributes", graphics.ErrShader)
	}
	q.aPos, q.aTex = uint32(aPos), uint32(aTex)
	q.uMVP = gl.GetUniformLocation(program, gl.Str("uMVPMatrix\x00"))
	q.uTex = gl.GetUniformLocation(program, gl.Str("uTexMatrix\x00"))
	q.uSampler = gl.GetUniformLocation(program, gl.Str("sTexture\x00"))

	verts, coords := graphics.Vertices, graphics.TexCoords(flip)
	gl.GenBuffers(2, &q.vbo[0])
	gl.BindBuffer(gl.ARRAY_BUFFER, q.vbo[0])
	gl.BufferData(gl.ARRAY_BUFFER, len(verts)*4, gl.Ptr(&verts[0]), gl.STATIC_DRAW)
	gl.BindBuffer(gl.ARRAY_BUFFER, q.vbo[1])
	gl.BufferData(gl.ARRAY_BUFFER, len(coords)*4, gl.Ptr(&coords[0]), gl.STATIC_DRAW)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)

	if err := glError("quad"); err != nil {
		q.Release()
		return nil, err
	}
	return &q, nil
}

func (q *quad) Draw(mvp, tex media.Matrix) error {
	gl.UseProgram(q.program)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, q.tex)
	gl.Uniform1i(q.uSampler, 0)
	gl.UniformMatrix4fv(q.uMVP, 1, false, &mvp[0])
	gl.UniformMatrix4fv(q.uTex, 1, false, &tex[0])

	gl.BindBuffer(gl.ARRAY_BUFFER, q.vbo[0])
	gl.EnableVertexAttribArray(q.aPos)
	gl.VertexAttribPointer(q.aPos, 2, gl.FLOAT, false, 0, gl.PtrOffset(0))
	gl.BindBuffer(gl.ARRAY_BUFFER, q.vbo[1])
	gl.EnableVertexAttribArray(q.aTex)
	gl.VertexAttribPointer(q.aTex, 2, gl.FLOAT, false, 0, gl.PtrOffset(0))

	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)

	gl.DisableVertexAttribArray(q.aPos)
	gl.DisableVertexAttribArray(q.aTex)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	gl.UseProgram(0)
	return glError("draw")
}

func (q *quad) Release() {
	gl.DeleteBuffers(2, &q.vbo[0])
	gl.DeleteProgram(q.program)
}

func newProgram(vertex, fragment string) (uint32, error) {
	vs, err := compile(vertex, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(vs)
	fs, err := compile(fragment, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(fs)

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &n)
		msg := strings.Repeat("\x00", int(n+1))
		gl.GetProgramInfoLog(program, n, nil, gl.Str(msg))
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("link: %v", strings.TrimRight(msg, "\x00"))
	}
	return program, nil
}

func compile(src string, kind uint32) (uint32, error) {
	shader := gl.CreateShader(kind)
	csrc, free := gl.Strs(src)
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &n)
		msg := strings.Repeat("\x00", int(n+1))
		gl.GetShaderInfoLog(shader, n, nil, gl.Str(msg))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile: %v", strings.TrimRight(msg, "\x00"))
	}
	return shader, nil
}
