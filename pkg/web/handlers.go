package web

import (
	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.snapshot())
}

func (s *Server) handleVoices(c *fiber.Ctx) error {
	active := ""
	if conv := s.conversation(); conv != nil {
		active = conv.Voice()
	}
	return c.JSON(fiber.Map{"voices": s.opts.Voices, "active": active})
}

func (s *Server) handlePersonas(c *fiber.Ctx) error {
	active := ""
	if conv := s.conversation(); conv != nil {
		active = conv.Persona()
	}
	return c.JSON(fiber.Map{"personas": s.opts.Personas, "active": active})
}

func (s *Server) handleCaptureStart(c *fiber.Ctx) error {
	conv := s.conversation()
	if conv == nil {
		return fiber.ErrServiceUnavailable
	}
	if err := conv.StartCapture(c.Context()); err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	s.pushState()
	return c.JSON(fiber.Map{"capturing": true})
}

func (s *Server) handleCaptureStop(c *fiber.Ctx) error {
	conv := s.conversation()
	if conv == nil {
		return fiber.ErrServiceUnavailable
	}
	if err := conv.StopCapture(); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	s.pushState()
	return c.JSON(fiber.Map{"capturing": false})
}

func (s *Server) handleCaptureToggle(c *fiber.Ctx) error {
	conv := s.conversation()
	if conv == nil {
		return fiber.ErrServiceUnavailable
	}
	on, err := conv.ToggleCapture(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	s.pushState()
	return c.JSON(fiber.Map{"capturing": on})
}

type voiceRequest struct {
	Voice string `json:"voice"`
}

func (s *Server) handleSetVoice(c *fiber.Ctx) error {
	conv := s.conversation()
	if conv == nil {
		return fiber.ErrServiceUnavailable
	}
	var req voiceRequest
	if err := c.BodyParser(&req); err != nil || req.Voice == "" {
		return fiber.NewError(fiber.StatusBadRequest, "voice required")
	}
	if err := conv.SetVoice(req.Voice); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	s.pushState()
	return c.JSON(fiber.Map{"voice": req.Voice})
}

type personaRequest struct {
	Persona string `json:"persona"`
}

func (s *Server) handleSetPersona(c *fiber.Ctx) error {
	conv := s.conversation()
	if conv == nil {
		return fiber.ErrServiceUnavailable
	}
	var req personaRequest
	if err := c.BodyParser(&req); err != nil || req.Persona == "" {
		return fiber.NewError(fiber.StatusBadRequest, "persona required")
	}
	if err := conv.SetPersona(req.Persona); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	s.pushState()
	return c.JSON(fiber.Map{"persona": req.Persona})
}
