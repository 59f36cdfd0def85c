package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// DataResponse writes the envelope with statusCode as both HTTP and body status.
func DataResponse(c echo.Context, statusCode int, data any) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

func ListResponse(c echo.Context, rows any, total int) error {
	return DataResponse(c, http.StatusOK, &ListDataResponse{Rows: rows, Total: int64(total)})
}

func SuccessResponse(c echo.Context, data any) error {
	return DataResponse(c, http.StatusOK, data)
}

// MultiStatusResponse reports an operation where some parts failed.
func MultiStatusResponse(c echo.Context, data any) error {
	return DataResponse(c, http.StatusMultiStatus, data)
}

func BadRequestResponse(c echo.Context, data any) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

func InternalServerErrorResponse(c echo.Context) error {
	return DataResponse(c, http.StatusInternalServerError, "Something went wrong")
}

// AppErrorResponse writes err when it is an *AppError and a generic 500
// otherwise.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return DataResponse(c, appErr.Status, []*AppError{appErr})
	}
	return InternalServerErrorResponse(c)
}
