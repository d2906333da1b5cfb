package service

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/laoyigrace/imagestore/internal/domain/model"
)

// safeString проверяет, что строка — корректный UTF-8 без символов за
// пределами базовой многоязыковой плоскости. Четырёхбайтовые руны
// отклоняем на границе: не каждая конфигурация хранилища их переживает.
func safeString(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if r > 0xFFFF {
			return false
		}
	}
	return true
}

func checkSafe(field, value string) error {
	if !safeString(value) {
		return fmt.Errorf("%w: поле %s содержит недопустимые символы", ErrValidation, field)
	}
	return nil
}

// validateImage проверяет инварианты записи образа перед сохранением.
func validateImage(img *model.Image) error {
	if img.Status != "" && !model.IsValidStatus(img.Status) {
		return fmt.Errorf("%w: недопустимый статус %q", ErrValidation, img.Status)
	}
	if img.MinDisk < 0 {
		return fmt.Errorf("%w: min_disk не может быть отрицательным", ErrValidation)
	}
	if img.MinRAM < 0 {
		return fmt.Errorf("%w: min_ram не может быть отрицательным", ErrValidation)
	}
	if img.Size != nil {
		if *img.Size < 0 {
			return fmt.Errorf("%w: size не может быть отрицательным", ErrValidation)
		}
	}
	if img.Name != nil {
		if err := checkSafe("name", *img.Name); err != nil {
			return err
		}
	}
	if img.Checksum != nil {
		if err := checkSafe("checksum", *img.Checksum); err != nil {
			return err
		}
	}
	if img.DiskFormat != nil {
		if err := checkSafe("disk_format", *img.DiskFormat); err != nil {
			return err
		}
	}
	if img.ContainerFormat != nil {
		if err := checkSafe("container_format", *img.ContainerFormat); err != nil {
			return err
		}
	}
	for _, tag := range img.Tags {
		if tag == "" {
			return fmt.Errorf("%w: пустой тег", ErrValidation)
		}
		if err := checkSafe("tag", tag); err != nil {
			return err
		}
	}
	for _, p := range img.Properties {
		if p.Name == "" {
			return fmt.Errorf("%w: свойство без имени", ErrValidation)
		}
		if err := checkSafe("property", p.Name); err != nil {
			return err
		}
		if err := checkSafe("property "+p.Name, p.Value); err != nil {
			return err
		}
	}
	for _, l := range img.Locations {
		if l.Address == "" {
			return fmt.Errorf("%w: локация без адреса", ErrValidation)
		}
		if err := checkSafe("location", l.Address); err != nil {
			return err
		}
		if l.Status != "" && !model.ValidLocationStatus(l.Status) {
			return fmt.Errorf("%w: недопустимый статус локации %q", ErrValidation, l.Status)
		}
	}
	return nil
}

// validateImageID проверяет формат идентификатора, заданного клиентом.
func validateImageID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: идентификатор %q не является корректным UUID", ErrValidation, id)
	}
	return nil
}
